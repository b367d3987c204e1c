package source

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/market-stream-service/internal/constant"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const DefaultBufferSize = 1024

// JetstreamSource feeds the forwarding agent from the market stream. Events
// are buffered on bounded channels; when a buffer is full the oldest event
// is dropped so the agent always sees the freshest data first.
type JetstreamSource struct {
	nc    *nats.Conn
	js    nats.JetStreamContext
	ticks chan entity.TickEvent
	bars  chan entity.BarEvent
	subs  []*nats.Subscription
}

func NewJetstreamSource(nc *nats.Conn, js nats.JetStreamContext, bufferSize int) *JetstreamSource {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &JetstreamSource{
		nc:    nc,
		js:    js,
		ticks: make(chan entity.TickEvent, bufferSize),
		bars:  make(chan entity.BarEvent, bufferSize),
	}
}

func (s *JetstreamSource) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.MarketStreamName,
		Subjects:  []string{constant.MarketStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    5 * time.Minute,
		Replicas:  1,
	}

	stream, err := s.js.StreamInfo(constant.MarketStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.MarketStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.MarketStreamName)

	return nil
}

func (s *JetstreamSource) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	tickSub, err := s.js.Subscribe(
		constant.MarketStreamSubjectTick,
		s.handleTickEvent,
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, tickSub)

	barSub, err := s.js.Subscribe(
		constant.MarketStreamSubjectBar,
		s.handleBarEvent,
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, barSub)

	return nil
}

// NextTick pops the oldest pending tick without blocking.
func (s *JetstreamSource) NextTick() (entity.TickEvent, bool) {
	select {
	case tick := <-s.ticks:
		return tick, true
	default:
		return entity.TickEvent{}, false
	}
}

// NextBar pops the oldest pending bar without blocking.
func (s *JetstreamSource) NextBar() (entity.BarEvent, bool) {
	select {
	case bar := <-s.bars:
		return bar, true
	default:
		return entity.BarEvent{}, false
	}
}

func (s *JetstreamSource) IsActive() bool {
	return s.nc != nil && s.nc.IsConnected()
}

func (s *JetstreamSource) Close() error {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			logrus.Warnf("unsubscribe %s: %v", sub.Subject, err)
		}
	}
	s.subs = nil

	return nil
}

func (s *JetstreamSource) handleTickEvent(msg *nats.Msg) {
	var tick entity.TickEvent
	if err := json.Unmarshal(msg.Data, &tick); err != nil {
		logrus.Errorf("decode tick event: %v", err)
		return
	}

	for {
		select {
		case s.ticks <- tick:
			return
		default:
		}

		select {
		case dropped := <-s.ticks:
			logrus.WithField("symbol", dropped.Symbol).Warn("tick buffer full, dropping oldest")
		default:
		}
	}
}

func (s *JetstreamSource) handleBarEvent(msg *nats.Msg) {
	var bar entity.BarEvent
	if err := json.Unmarshal(msg.Data, &bar); err != nil {
		logrus.Errorf("decode bar event: %v", err)
		return
	}

	for {
		select {
		case s.bars <- bar:
			return
		default:
		}

		select {
		case dropped := <-s.bars:
			logrus.WithFields(logrus.Fields{
				"symbol":    dropped.Symbol,
				"timeframe": dropped.Timeframe,
			}).Warn("bar buffer full, dropping oldest")
		default:
		}
	}
}
