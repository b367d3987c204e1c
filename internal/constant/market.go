package constant

const (
	RoomTicks = "ticks"
	RoomBars  = "bars"

	EventTickData        = "tick_data"
	EventBarData         = "bar_data"
	EventInitialTickData = "initial_tick_data"
	EventInitialBarData  = "initial_bar_data"

	CommandJoinTicks  = "join_ticks"
	CommandLeaveTicks = "leave_ticks"
	CommandJoinBars   = "join_bars"
	CommandLeaveBars  = "leave_bars"

	MarketStreamName        = "market"
	MarketStreamSubjectAll  = "market.*"
	MarketStreamSubjectTick = "market.tick"
	MarketStreamSubjectBar  = "market.bar"
)
