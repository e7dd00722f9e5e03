package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"go.uber.org/zap"
)

// QoS of participant change events.
const eventQoS byte = 1

// Publisher is the publishing side of Client.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ChangeNotifier publishes participant change events. It implements
// service.ChangeNotifier; publish failures are logged only.
type ChangeNotifier struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

func NewChangeNotifier(publisher Publisher, topic string, logger *zap.Logger) *ChangeNotifier {
	return &ChangeNotifier{publisher: publisher, topic: topic, logger: logger}
}

func (n *ChangeNotifier) ParticipantChanged(_ context.Context, ev domain.ParticipantEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("Failed to encode participant event", zap.String("event", ev.Event), zap.Error(err))
		return
	}
	if err := n.publisher.Publish(n.topic, eventQoS, false, payload); err != nil {
		n.logger.Warn("Failed to publish participant event",
			zap.String("topic", n.topic),
			zap.String("event", ev.Event),
			zap.String("participant_id", ev.ParticipantID),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("Participant event published", zap.String("topic", n.topic), zap.String("event", ev.Event))
}

// DecodeEvent parses a payload published by ChangeNotifier.
func DecodeEvent(payload []byte) (domain.ParticipantEvent, error) {
	var ev domain.ParticipantEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	ev.At = time.Unix(ev.AtUnix, 0)
	return ev, nil
}
