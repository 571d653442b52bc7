package templates

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
)

// Template names accepted by Render.
const (
	TplStart       = "start"
	TplHelp        = "help"
	TplAbout       = "about"
	TplContainers  = "containers"
	TplContainer   = "container_full"
	TplLogs        = "logs"
	TplImages      = "images"
	TplEngine      = "engine"
	TplLoadAvg     = "load_avg"
	TplMemory      = "memory"
	TplSwap        = "swap"
	TplDisk        = "disk"
	TplSensors     = "sensors"
	TplUptime      = "uptime"
	TplNetwork     = "network"
	TplProcess     = "process"
	TplAuthPrompt  = "auth_prompt"
	TplAuthWrong   = "auth_wrong"
	TplAuthBlocked = "auth_blocked"
	TplAuthSuccess = "auth_success"
	TplQRCaption   = "qr_caption"
	TplBotUpdates  = "bot_updates"
	TplPlugins     = "plugins"
	TplEcho        = "echo"
)

// Plain refusal texts used outside the render path, where a failure to
// render must not be able to swallow the refusal itself.
const (
	RefusalTerse = "⛔ Access denied. You are not on the allow-list of this bot."
	RefusalFinal = "🚫 Access denied. Repeated attempts from your account have been recorded and reported. Further requests will be ignored for a while."
	RateLimited  = "🐢 Slow down, please. Too many requests in a short window."
	GenericError = "⚠️ Something went wrong. Please try again."
)

var sources = map[string]string{
	TplStart: `👋 Hello, <b>{{ .FirstName }}</b>!
I am <b>{{ .BotName }}</b> — your Docker operations agent on this host.

Use the keyboard below or /help to see what I can do.`,

	TplHelp: `🧭 <b>What I can do</b>

/start — main menu
/containers — list containers
/images — list local images
/qrcode — 2FA enrolment QR code
/check_bot_updates — look for a newer release
/help — this message

Privileged container actions require two-factor authentication and an admin account.`,

	TplAbout: `🤖 <b>{{ .BotName }} {{ .Version }}</b>
<i>{{ .Commit }}</i>

🖥 Host: <code>{{ .Hostname }}</code>
🐧 {{ .Platform }} {{ .PlatformVer }} ({{ .KernelArch }})
🧩 Kernel: <code>{{ .KernelVersion }}</code>`,

	TplContainers: `🐳 <b>Containers</b> ({{ len . }})
{{ range . }}
▪️ <b>{{ .Name }}</b> <code>{{ .ShortID }}</code>
   {{ .Image }}
   {{ .Status }}{{ if ne .RunAt "-" }}, started {{ .RunAt }}{{ end }}
{{ else }}
No containers found on this host.
{{ end }}`,

	TplContainer: `🐳 <b>{{ .Name }}</b>

🧠 <b>Memory</b>: {{ bytes .Memory.Usage }} / {{ bytes .Memory.Limit }} ({{ pct .Memory.Percent }}%)
⏱ <b>CPU throttling</b>: {{ .CPU.ThrottledPeriods }}/{{ .CPU.Periods }} periods{{ if .CPU.ThrottledTime }}, {{ .CPU.ThrottledTime }} ns{{ end }}
{{ if .Network.Interface }}🌐 <b>{{ .Network.Interface }}</b>: ↓ {{ bytes .Network.RxBytes }} ↑ {{ bytes .Network.TxBytes }} (err {{ .Network.RxErrors }}/{{ .Network.TxErrors }}, drop {{ .Network.RxDropped }}/{{ .Network.TxDropped }})
{{ end }}
📋 <b>State</b>: {{ if .Attrs.Running }}running{{ else if .Attrs.Paused }}paused{{ else if .Attrs.Restarting }}restarting{{ else if .Attrs.Dead }}dead{{ else }}stopped (exit {{ .Attrs.ExitCode }}){{ end }}, restarts: {{ .Attrs.RestartCount }}
{{ if .Attrs.Cmd }}▶️ <code>{{ join .Attrs.Cmd " " }}</code>{{ end }}`,

	TplLogs: `📜 <b>Logs: {{ .Name }}</b> (last lines)

<pre>{{ .Text }}</pre>`,

	TplImages: `🖼 <b>Images</b> ({{ len . }})
{{ range . }}
▪️ <b>{{ .Name }}</b> <code>{{ .ID }}</code>
   {{ .Size }}, created {{ .Created }}{{ if .Architecture }}, {{ .OS }}/{{ .Architecture }}{{ end }}
{{ else }}
No images found on this host.
{{ end }}`,

	TplEngine: `🐳 <b>Docker engine</b>

Version: <code>{{ .Version }}</code> (API {{ .APIVersion }})
Host: <code>{{ .Name }}</code>
OS: {{ .OperatingSystem }} ({{ .Architecture }})
Kernel: <code>{{ .KernelVersion }}</code>
CPUs: {{ .NCPU }}, memory: {{ .MemTotal }}

Containers: {{ .Containers }} total, {{ .ContainersRunning }} running, {{ .ContainersPaused }} paused, {{ .ContainersStopped }} stopped
Images: {{ .Images }}`,

	TplLoadAvg: `📊 <b>Load average</b>

1 min: <b>{{ pct .Load1 }}</b>
5 min: <b>{{ pct .Load5 }}</b>
15 min: <b>{{ pct .Load15 }}</b>
{{ if .CPUCount }}
Logical CPUs: {{ .CPUCount }}{{ end }}`,

	TplMemory: `🧠 <b>Memory</b>

Total: {{ bytes .Total }}
Used: {{ bytes .Used }} ({{ pct .Percent }}%)
Available: {{ bytes .Available }}
Free: {{ bytes .Free }}
Cached: {{ bytes .Cached }}, buffers: {{ bytes .Buffers }}
Active: {{ bytes .Active }}, inactive: {{ bytes .Inactive }}`,

	TplSwap: `💱 <b>Swap</b>

Total: {{ bytes .Total }}
Used: {{ bytes .Used }} ({{ pct .Percent }}%)
Free: {{ bytes .Free }}
In: {{ bytes .Sin }}, out: {{ bytes .Sout }}`,

	TplDisk: `💾 <b>File systems</b>
{{ range . }}
▪️ <code>{{ .MountPoint }}</code> ({{ .FSType }})
   {{ bytes .Used }} / {{ bytes .Total }} ({{ pct .Percent }}%)
{{ else }}
No mounted file systems visible.
{{ end }}`,

	TplSensors: `🌡 <b>Sensors</b>
{{ range . }}
▪️ {{ .SensorKey }}: <b>{{ pct .Current }}°C</b>{{ if .Critical }} (crit {{ pct .Critical }}°C){{ end }}
{{ else }}
No temperature sensors detected.
{{ end }}`,

	TplUptime: `⏳ <b>Uptime</b>: {{ dur .Uptime }}`,

	TplNetwork: `🌐 <b>Network I/O</b>
{{ range . }}
▪️ <b>{{ .Name }}</b>
   ↓ {{ bytes .BytesRecv }} ({{ .PacketsRecv }} pkts, {{ .ErrIn }} err, {{ .DropIn }} drop)
   ↑ {{ bytes .BytesSent }} ({{ .PacketsSent }} pkts, {{ .ErrOut }} err, {{ .DropOut }} drop)
{{ else }}
No network interfaces visible.
{{ end }}`,

	TplProcess: `⚙️ <b>Processes</b>

Total: {{ .ProcsTotal }}
Running: {{ .ProcsRunning }}
Blocked: {{ .ProcsBlocked }}

Bot RSS: {{ bytes .SelfRSS }}`,

	TplAuthPrompt: `🔐 <b>Two-factor authentication</b>

Send your 6-digit one-time code from the authenticator app.
You have {{ .AttemptsLeft }} attempt{{ if ne .AttemptsLeft 1 }}s{{ end }}.`,

	TplAuthWrong: `❌ Wrong code. {{ .AttemptsLeft }} attempt{{ if ne .AttemptsLeft 1 }}s{{ end }} left.`,

	TplAuthBlocked: `⛔ Too many wrong codes. Verification is blocked for {{ .Minutes }} minute{{ if ne .Minutes 1 }}s{{ end }}.`,

	TplAuthSuccess: `✅ Code accepted. Your session is valid for {{ .Minutes }} minutes.{{ if .HasReferer }}

You can return to what you were doing:{{ end }}`,

	TplQRCaption: `🔑 Scan this code with your authenticator app.
It will disappear in {{ .Seconds }} seconds — if it does not, delete it manually.`,

	TplBotUpdates: `{{ if .DevBuild }}🧪 You are running a development build ({{ .Current }}). Latest published release: <b>{{ .Latest }}</b>.
{{ .URL }}{{ else if .UpToDate }}✅ You are running the latest release (<b>{{ .Current }}</b>).{{ else }}🆕 A newer release is available: <b>{{ .Latest }}</b> (you run {{ .Current }}).
{{ .URL }}{{ with .Notes }}

{{ . }}{{ end }}{{ end }}`,

	TplPlugins: `🔌 <b>Plugins</b> ({{ len . }})
{{ range . }}
▪️ <b>{{ .Name }}</b> {{ .Version }} — {{ .Description }}
{{ else }}
No plugins loaded.
{{ end }}`,

	TplEcho: `🤷 I don't know the command <code>{{ .Text }}</code>. Try /help.`,
}

// View models for templates that are not fed a domain type directly.
type (
	StartView struct {
		FirstName string
		BotName   string
	}
	AboutView struct {
		BotName       string
		Version       string
		Commit        string
		Hostname      string
		Platform      string
		PlatformVer   string
		KernelArch    string
		KernelVersion string
	}
	LogsView struct {
		Name string
		Text string
	}
	AttemptsView struct {
		AttemptsLeft int
	}
	BlockedView struct {
		Minutes int
	}
	SuccessView struct {
		Minutes    int
		HasReferer bool
	}
	QRView struct {
		Seconds int
	}
	ProcessView struct {
		ProcsTotal   int
		ProcsRunning int
		ProcsBlocked int
		SelfRSS      uint64
	}
	UptimeView struct {
		Uptime time.Duration
	}
	UpdatesView struct {
		DevBuild bool
		UpToDate bool
		Current  string
		Latest   string
		URL      string
		Notes    string
	}
	EchoView struct {
		Text string
	}
)

// Renderer holds the parsed template set.
type Renderer struct {
	root *template.Template
}

// NewRenderer parses every view template once. A syntax error in any
// template fails construction rather than the first render.
func NewRenderer() (*Renderer, error) {
	root := template.New("views").Funcs(template.FuncMap{
		"bytes": func(v uint64) string { return units.HumanSize(float64(v)) },
		"pct":   func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
		"join":  strings.Join,
		"dur":   func(d time.Duration) string { return units.HumanDuration(d) },
	})
	for name, src := range sources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("failed to parse template %q: %w", name, err)
		}
	}
	return &Renderer{root: root}, nil
}

// Render executes the named template. Output is Telegram HTML. A failed
// execution surfaces as a HANDLING error so the dispatcher answers with
// the generic error line.
func (r *Renderer) Render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := r.root.ExecuteTemplate(&sb, name, data); err != nil {
		return "", errs.New(errs.CodeHandling, "render template", err, "template", name)
	}
	return strings.TrimSpace(sb.String()), nil
}
