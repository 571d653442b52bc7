package keyboards

import (
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

// Reply-keyboard button labels. Handlers route message text on these.
const (
	BtnContainers  = "🐳 Containers"
	BtnImages      = "🖼 Images"
	BtnEngine      = "🛠 Docker"
	BtnLoadAverage = "📊 Load average"
	BtnMemory      = "🧠 Memory load"
	BtnSwap        = "💱 Swap"
	BtnDisk        = "💾 File system"
	BtnSensors     = "🌡 Sensors"
	BtnUptime      = "⏳ Uptime"
	BtnNetwork     = "🌐 Network"
	BtnProcess     = "⚙️ Process"
	BtnAbout       = "🤖 About me"
	BtnBack        = "🔙 Back to main menu"
	BtnEnterCode   = "🔐 Enter 2FA code"
	BtnQRCode      = "🔑 Get QR-code for 2FA app"
)

// Wire action names carried in signed callback payloads. Kept short so
// a 10-character container reference always fits the 64-byte budget.
const (
	ActionContainerFull = "get_full"
	ActionContainerLogs = "get_logs"
	ActionManageMenu    = "manage"
	ActionStart         = "start"
	ActionStop          = "stop"
	ActionRestart       = "restart"
	ActionRenameInfo    = "rn_info"
)

// Plain navigation callback data. Never signed: pressing one reveals
// nothing and mutates nothing. Codec payloads always contain a dot, so
// the router can tell the two apart without parsing.
const (
	NavContainers = "back_to_containers"
	NavMain       = "back_to_main"
	NavSwap       = "swap_info"
	NavHowUpdate  = "how_update"
)

// ParamContainer is the payload key carrying the container reference.
const ParamContainer = "c"

// refFallbackLen is how much of the container id is kept when the full
// name does not fit a payload. The engine resolves unambiguous prefixes.
const refFallbackLen = 10

// Main is the top-level reply keyboard.
func Main() *tele.ReplyMarkup {
	return replyRows(
		[]string{BtnLoadAverage, BtnMemory, BtnSwap},
		[]string{BtnDisk, BtnSensors, BtnUptime},
		[]string{BtnNetwork, BtnProcess, BtnAbout},
		[]string{BtnContainers, BtnImages, BtnEngine},
	)
}

// Auth is the keyboard offered to unauthenticated users.
func Auth() *tele.ReplyMarkup {
	return replyRows(
		[]string{BtnEnterCode, BtnQRCode},
		[]string{BtnBack},
	)
}

// BackOnly returns to the main menu.
func BackOnly() *tele.ReplyMarkup {
	return replyRows([]string{BtnBack})
}

// Referer rebuilds the keyboard that replays a stored trigger after a
// successful login: an inline button for a callback trigger, a one-shot
// reply button for a message trigger.
func Referer(ref types.Referer) *tele.ReplyMarkup {
	if ref.Kind == types.UpdateKindCallbackQuery {
		return &tele.ReplyMarkup{
			InlineKeyboard: [][]tele.InlineButton{{
				{Text: "➡️ Continue", Data: ref.Data},
			}},
		}
	}
	m := replyRows([]string{ref.Data})
	m.OneTimeKeyboard = true
	return m
}

// BackToContainers is the inline row returning to the container list.
func BackToContainers() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: "🔙 Back to containers", Data: NavContainers},
	}}}
}

// SwapLink is attached to the memory view.
func SwapLink() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: "💱 Swap details", Data: NavSwap},
	}}}
}

// UpdateHelp is attached to the release view when an update exists.
func UpdateHelp() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: "❓ How to update", Data: NavHowUpdate},
	}}}
}

// Builder constructs inline keyboards whose buttons carry signed
// payloads bound to the requesting user.
type Builder struct {
	codec *callback.Codec
}

func NewBuilder(codec *callback.Codec) *Builder {
	return &Builder{codec: codec}
}

// Containers renders one button per container, opening its detail view.
func (b *Builder) Containers(userID int64, list []types.ContainerSummary) (*tele.ReplyMarkup, error) {
	rows := make([][]tele.InlineButton, 0, len(list)+1)
	for _, c := range list {
		data, err := b.encodeRef(ActionContainerFull, userID, c.Name, c.ShortID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []tele.InlineButton{{Text: "🐳 " + c.Name, Data: data}})
	}
	rows = append(rows, []tele.InlineButton{{Text: BtnBack, Data: NavMain}})
	return &tele.ReplyMarkup{InlineKeyboard: rows}, nil
}

// ContainerActions is the per-container detail menu. The manage row is
// only offered to admins; the facade re-checks on press regardless.
func (b *Builder) ContainerActions(userID int64, name, id string, admin bool) (*tele.ReplyMarkup, error) {
	logs, err := b.encodeRef(ActionContainerLogs, userID, name, id)
	if err != nil {
		return nil, err
	}
	rows := [][]tele.InlineButton{
		{{Text: "📜 Logs", Data: logs}},
	}
	if admin {
		manage, err := b.encodeRef(ActionManageMenu, userID, name, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []tele.InlineButton{{Text: "🛠 Manage", Data: manage}})
	}
	rows = append(rows, []tele.InlineButton{{Text: "🔙 Back to containers", Data: NavContainers}})
	return &tele.ReplyMarkup{InlineKeyboard: rows}, nil
}

// ManageActions is the mutation menu for one container.
func (b *Builder) ManageActions(userID int64, name, id string) (*tele.ReplyMarkup, error) {
	var rows [][]tele.InlineButton

	var actionRow []tele.InlineButton
	for _, a := range []struct{ text, action string }{
		{"▶️ Start", ActionStart},
		{"⏹ Stop", ActionStop},
		{"🔄 Restart", ActionRestart},
	} {
		data, err := b.encodeRef(a.action, userID, name, id)
		if err != nil {
			return nil, err
		}
		actionRow = append(actionRow, tele.InlineButton{Text: a.text, Data: data})
	}
	rows = append(rows, actionRow)

	rename, err := b.encodeRef(ActionRenameInfo, userID, name, id)
	if err != nil {
		return nil, err
	}
	rows = append(rows, []tele.InlineButton{{Text: "✏️ Rename", Data: rename}})
	rows = append(rows, []tele.InlineButton{{Text: "🔙 Back to containers", Data: NavContainers}})
	return &tele.ReplyMarkup{InlineKeyboard: rows}, nil
}

// encodeRef signs an action against a container. The full name is
// preferred; when it pushes the payload over budget, an id prefix is
// used instead.
func (b *Builder) encodeRef(action string, userID int64, name, id string) (string, error) {
	if name != "" {
		if data, err := b.codec.Encode(action, map[string]string{ParamContainer: name}, userID); err == nil {
			return data, nil
		}
	}
	ref := id
	if len(ref) > refFallbackLen {
		ref = ref[:refFallbackLen]
	}
	return b.codec.Encode(action, map[string]string{ParamContainer: ref}, userID)
}

func replyRows(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb := make([][]tele.ReplyButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.ReplyButton, 0, len(row))
		for _, text := range row {
			btns = append(btns, tele.ReplyButton{Text: text})
		}
		kb = append(kb, btns)
	}
	m.ReplyKeyboard = kb
	return m
}
