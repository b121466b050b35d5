package hotparams

import (
	"errors"
	"strings"
)

// Recognized routing keys.
const (
	// KeyYarnQueue is the scheduling queue.
	KeyYarnQueue = "yarn.queue"

	// KeyYarnQueueLabelExpr is the optional node label expression.
	KeyYarnQueueLabelExpr = "yarn.queue.label-expr"
)

// queueLabelSeparator joins queue and label expression in a routing token.
const queueLabelSeparator = ";"

// ErrInvalidQueueLabel indicates a routing token without a queue.
var ErrInvalidQueueLabel = errors.New("invalid queue label expression")

// QueueLabel is a scheduling queue plus an optional label expression.
type QueueLabel struct {
	Queue     string
	LabelExpr string
}

// NewQueueLabel validates and trims a queue/label pair.
func NewQueueLabel(queue, labelExpr string) (QueueLabel, error) {
	q := strings.TrimSpace(queue)
	if q == "" || strings.Contains(q, queueLabelSeparator) {
		return QueueLabel{}, ErrInvalidQueueLabel
	}
	return QueueLabel{Queue: q, LabelExpr: strings.TrimSpace(labelExpr)}, nil
}

// ParseQueueLabel parses a routing token: "<queue>" or "<queue>;<label-expr>".
func ParseQueueLabel(token string) (QueueLabel, error) {
	queue, label, _ := strings.Cut(token, queueLabelSeparator)
	return NewQueueLabel(queue, label)
}

// String renders the routing token read by submission collaborators.
func (q QueueLabel) String() string {
	if q.LabelExpr == "" {
		return q.Queue
	}
	return q.Queue + queueLabelSeparator + q.LabelExpr
}

// Map renders the pair as hot params entries. The label key is omitted when
// there is no label expression.
func (q QueueLabel) Map() map[string]string {
	if q.Queue == "" {
		return map[string]string{}
	}
	m := map[string]string{KeyYarnQueue: q.Queue}
	if q.LabelExpr != "" {
		m[KeyYarnQueueLabelExpr] = q.LabelExpr
	}
	return m
}

// QueueLabelMap parses a routing token into hot params entries. A blank or
// invalid token yields an empty map.
func QueueLabelMap(token string) map[string]string {
	if strings.TrimSpace(token) == "" {
		return map[string]string{}
	}
	ql, err := ParseQueueLabel(token)
	if err != nil {
		return map[string]string{}
	}
	return ql.Map()
}

// QueueLabelFromParams reads the routing pair from decoded hot params.
// ok is false when no queue key is present.
func QueueLabelFromParams(params map[string]string) (QueueLabel, bool, error) {
	queue, ok := params[KeyYarnQueue]
	if !ok {
		return QueueLabel{}, false, nil
	}
	ql, err := NewQueueLabel(queue, params[KeyYarnQueueLabelExpr])
	if err != nil {
		return QueueLabel{}, true, err
	}
	return ql, true, nil
}
