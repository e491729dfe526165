package bridge

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

var (
	ErrMalformed    = errors.New("malformed channel message")
	ErrUnrecognized = errors.New("unrecognized channel message")
)

var (
	correctPattern  = regexp.MustCompile(`(?i)正确[:\s]*(\d+)`)
	wrongPattern    = regexp.MustCompile(`(?i)错误[:\s]*(\d+)`)
	progressPattern = regexp.MustCompile(`(?i)进度[:\s]*(\d+)`)
)

// wireMessage is the loose shape every inbound payload is decoded into
// before it is checked against the accepted union.
type wireMessage struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
	Status  string `json:"status"`
	Data    *struct {
		Score any `json:"score"`
	} `json:"data"`
}

// Decode parses a raw channel payload into a typed message.
func Decode(raw []byte) (types.ChannelMessage, error) {
	if len(raw) == 0 {
		return nil, ErrMalformed
	}

	var msg wireMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch msg.Type {
	case types.MessageAlert, types.MessageConfirm:
		text, ok := scalarText(msg.Message)
		if !ok {
			return nil, fmt.Errorf("%w: %s message is not text", ErrMalformed, msg.Type)
		}
		kind := types.HostCallAlert
		if msg.Type == types.MessageConfirm {
			kind = types.HostCallConfirm
		}
		return types.HostCallIntercepted{Kind: kind, Message: text}, nil

	case types.MessageStatus:
		if msg.Status != types.StatusScoreUpdate {
			return nil, fmt.Errorf("%w: status %q", ErrUnrecognized, msg.Status)
		}
		if msg.Data == nil || msg.Data.Score == nil {
			return nil, fmt.Errorf("%w: score update without score", ErrMalformed)
		}
		text, ok := scalarText(msg.Data.Score)
		if !ok {
			return nil, fmt.Errorf("%w: score is not text", ErrMalformed)
		}
		return types.StatusUpdate{Status: msg.Status, Payload: ParseScore(text)}, nil

	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnrecognized, msg.Type)
	}
}

// ParseScore extracts the correct/wrong/progress counters from free text
// such as "正确: 3 错误: 1 进度: 4/10". Fields that are missing or do not
// fit in an int are left absent.
func ParseScore(text string) types.ScoreDelta {
	return types.ScoreDelta{
		Correct:  match(correctPattern, text),
		Wrong:    match(wrongPattern, text),
		Progress: match(progressPattern, text),
	}
}

func match(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// scalarText renders the JSON scalars a sandbox may pass to alert/confirm
func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
