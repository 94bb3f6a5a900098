package web

import (
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/gpio-skill/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(s status.Snapshot) string {
		return humanize.RelTime(s.StartTime, s.Now, "", "")
	},
	"since": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"count": func(n uint64) string {
		return humanize.Comma(int64(n))
	},
	"stateClass": func(s string) string {
		switch s {
		case "On", "Pressed":
			return "on"
		case "Off", "Released":
			return "off"
		}
		return "unknown"
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO Skill</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.SkillName}}</h1>

<h2>Pins</h2>
<table>
<tr><th>Pin</th><td>State</td><td>Changed</td></tr>
{{range .Pins}}<tr><th>{{.Name}}</th><td class="{{stateClass .State}}">{{stateOrUnknown .State}}</td><td>{{since .Changed $.Now}} ({{.Changes}})</td></tr>
{{end}}<tr><th>Blinking</th><td class="{{if .BlinkActive}}on{{else}}off{{end}}">{{if .BlinkActive}}yes{{else}}no{{end}}</td><td>every {{.Config.BlinkInterval}}</td></tr>
</table>
{{if .Inputs}}
<h2>Inputs</h2>
<table>
<tr><th>Input</th><td>Debounced</td><td>Presses / Releases</td></tr>
{{range .Inputs}}<tr><th>{{.Name}}</th><td class="{{stateClass .State}}">{{if .State}}{{.State}}{{else}}settling{{end}}</td><td>{{.Presses}} / {{.Releases}}</td></tr>
{{end}}</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>GPIO</th><td class="{{if .GPIOImported}}connected{{else}}disconnected{{end}}">{{if .GPIOImported}}imported{{else}}not imported{{end}} ({{.Config.Backend}})</td></tr>
<tr><th>Bus</th><td class="{{if .BusConnected}}connected{{else}}disconnected{{end}}">{{if .BusConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Bus URL</th><td>{{.Config.BusURL}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .MQTTBuffered}}<tr><th>MQTT backlog</th><td class="disconnected">{{.MQTTBuffered}} waiting</td></tr>
{{end}}
</table>

<h2>Intents</h2>
<table>
<tr><th>Commands</th><td>{{count .Counts.Commands}}</td></tr>
<tr><th>Queries</th><td>{{count .Counts.Queries}}</td></tr>
<tr><th>Ignored</th><td>{{count .Counts.Ignored}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, snap)
}
