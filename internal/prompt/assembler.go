package prompt

import (
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/llm"
	"github.com/raphaelgruber/voss-go/internal/models"
)

// EchoOrder decides where echoes sit relative to each other.
type EchoOrder string

const (
	// EchoOrderInsertion places each echo directly after the persona, ahead
	// of the ones placed before it. The most similar echo ends up last,
	// next to the history.
	EchoOrderInsertion EchoOrder = "insertion"
	// EchoOrderSimilarity keeps retrieval order, most similar first.
	EchoOrderSimilarity EchoOrder = "similarity"
)

// ParseEchoOrder maps a config value to an EchoOrder, defaulting to insertion.
func ParseEchoOrder(s string) EchoOrder {
	if EchoOrder(s) == EchoOrderSimilarity {
		return EchoOrderSimilarity
	}
	return EchoOrderInsertion
}

// DefaultHistoryWindow is the number of past turns replayed.
const DefaultHistoryWindow = 20

// Assembler orders prompt messages.
type Assembler struct {
	Order EchoOrder
	// HistoryWindow caps replayed turns to the most recent N. Zero replays all.
	HistoryWindow int
}

// FormatEcho renders a retrieved entry as a system annotation.
func FormatEcho(e models.MemoryEntry) string {
	if e.Response != nil && *e.Response != "" {
		return fmt.Sprintf("In a former passage, the user once said: '%s'. You, V.O.S.S., responded: '%s'. Let this echo inform what comes next.", e.Text, *e.Response)
	}
	return fmt.Sprintf("In a former passage, the user once said: '%s'. Let this echo inform what comes next.", e.Text)
}

// Assemble builds the message sequence: persona at position 0, one system
// annotation per echo, the replayed history as user/assistant pairs, and
// message last. A turn with an empty user side contributes only its reply.
func (a Assembler) Assemble(persona string, history []models.Turn, echoes []models.MemoryEntry, message string) []llm.Message {
	if a.HistoryWindow > 0 && len(history) > a.HistoryWindow {
		history = history[len(history)-a.HistoryWindow:]
	}

	out := make([]llm.Message, 0, 2+len(echoes)+2*len(history))
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: persona})

	for i := range echoes {
		e := echoes[i]
		if a.Order != EchoOrderSimilarity {
			e = echoes[len(echoes)-1-i]
		}
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: FormatEcho(e)})
	}

	for _, turn := range history {
		if turn.User != "" {
			out = append(out, llm.Message{Role: llm.RoleUser, Content: turn.User})
		}
		out = append(out, llm.Message{Role: llm.RoleAssistant, Content: turn.Assistant})
	}

	return append(out, llm.Message{Role: llm.RoleUser, Content: message})
}
