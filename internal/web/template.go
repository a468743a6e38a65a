package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/keritech/hifipower/internal/power"
	"github.com/keritech/hifipower/internal/status"
)

// indexData is what the status page template renders.
type indexData struct {
	Power  power.Snapshot
	Counts power.Counts
	Daemon status.Snapshot
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"state": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

func renderHTML(w io.Writer, data indexData) error {
	return indexTmpl.Execute(w, data)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>hifipower</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
a.btn { display: inline-block; padding: 2px 10px; margin-right: 6px; border: 1px solid #888; text-decoration: none; color: inherit; }
</style>
</head>
<body>
<h1>hifipower &mdash; audio power control</h1>

{{if .Power.ManualOverride}}<p class="warn">Manual override is on &mdash; software control inactive.</p>{{end}}

<h2>Channels</h2>
<table>
{{range .Power.Channels}}<tr>
<th>Channel {{.ID}}</th>
<td class="{{if .On}}on{{else}}off{{end}}">{{state .On}}</td>
<td>
<a class="btn" href="/power/{{.ID}}/on">on</a>
<a class="btn" href="/power/{{.ID}}/off">off</a>
<a class="btn" href="/power/{{.ID}}/toggle">toggle</a>
</td>
</tr>{{end}}
<tr>
<th>All channels</th>
<td></td>
<td>
<a class="btn" href="/power/on">on</a>
<a class="btn" href="/power/off">off</a>
<a class="btn" href="/power/toggle">toggle</a>
</td>
</tr>
</table>

<h2>Mode</h2>
<table>
<tr><th>Auto mode</th><td>{{yesno .Power.AutoMode}}</td></tr>
<tr><th>Auto sense</th><td>{{state .Power.AutoSense}}</td></tr>
<tr><th>Manual override</th><td>{{yesno .Power.ManualOverride}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .Daemon.Config.Broker}}<tr><th>MQTT</th><td class="{{if .Daemon.MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Daemon.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Daemon.Config.Broker}}</td></tr>{{else}}<tr><th>MQTT</th><td>disabled</td></tr>{{end}}
{{if .Daemon.Network}}<tr><th>Network</th><td>{{.Daemon.Network.Status}} ({{.Daemon.Network.Type}}{{if .Daemon.Network.SSID}} &mdash; {{.Daemon.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Daemon.Network.IP}}</td></tr>{{end}}
</table>

<h2>Command Counts</h2>
<table>
<tr><th>On</th><td>{{.Counts.On}}</td></tr>
<tr><th>Off</th><td>{{.Counts.Off}}</td></tr>
<tr><th>Toggle</th><td>{{.Counts.Toggle}}</td></tr>
<tr><th>Cycle</th><td>{{.Counts.Cycle}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Daemon.Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Daemon.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Daemon.Config.PollMs}}ms</td></tr>
<tr><th>Button debounce</th><td>{{.Daemon.Config.ButtonDebounceMs}}ms</td></tr>
<tr><th>Sense debounce</th><td>{{.Daemon.Config.SenseDebounceMs}}ms</td></tr>
<tr><th>Reboot delay</th><td>{{.Daemon.Config.RebootDelayMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Daemon.Config.HeartbeatMs 0}}disabled{{else}}{{.Daemon.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Daemon.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/json">JSON</a></p>
</body>
</html>
`
