package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime":  formatUptime,
	"window":  device.WindowLabel,
	"when":    formatWhen,
	"stateOf": func(d status.DeviceStatus) string { return string(d.State) },
	"cls": func(d status.DeviceStatus) string {
		switch d.State {
		case logic.StateOn:
			return "on"
		case logic.StateOff:
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO Manager</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>GPIO Manager<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Inputs</h2>
<table>
<tr><th>Name</th><th>Pin</th><th>State</th>{{range .Config.Windows}}<th>{{window .}}</th>{{end}}<th>Last change</th></tr>
{{range .Inputs}}<tr id="dev-{{.Name}}" title="{{.Description}}">
<td>{{.Name}}</td><td>{{.Pin}}{{if .Reverted}} (rev){{end}}</td>
<td class="state {{cls .}}">{{stateOf .}}</td>
{{range .Smoothed}}<td class="smoothed" data-window="{{window .Window}}">{{if .On}}ON{{else}}OFF{{end}}</td>{{end}}
<td class="changed">{{when .LastChange}}</td>
</tr>
{{else}}<tr><td colspan="4">none</td></tr>
{{end}}</table>

<h2>Outputs</h2>
<table>
<tr><th>Name</th><th>Pin</th><th>State</th><th>Last change</th><th></th></tr>
{{range .Outputs}}<tr id="dev-{{.Name}}" title="{{.Description}}">
<td>{{.Name}}</td><td>{{.Pin}}{{if .Reverted}} (rev){{end}}</td>
<td class="state {{cls .}}">{{stateOf .}}</td>
<td class="changed">{{when .LastChange}}</td>
<td><a href="/devices/{{.Name}}?set=on">on</a> <a href="/devices/{{.Name}}?set=off">off</a></td>
</tr>
{{else}}<tr><td colspan="4">none</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .Config.Broker}} ({{.Config.Broker}}){{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HomeKit</th><td>{{if .Config.HomeKit}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) { dot.className = "live-dot " + cls; dot.title = title; }
  function cls(state) { return state === "ON" ? "on" : state === "OFF" ? "off" : "unknown"; }

  function apply(d) {
    var row = document.getElementById("dev-" + d.name);
    if (!row) return;
    var st = row.querySelector(".state");
    st.textContent = d.state;
    st.className = "state " + cls(d.state);
    row.querySelector(".changed").textContent = d.last_change ? d.last_change : "never";
    row.querySelectorAll(".smoothed").forEach(function(td) {
      var v = d.smoothed && d.smoothed[td.dataset.window];
      td.textContent = v ? "ON" : "OFF";
    });
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onmessage = function(ev) { try { apply(JSON.parse(ev.data)); } catch (e) {} };
    ws.onclose = function() { setDot("err", "offline"); setTimeout(connect, 5000); };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and Ready() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	return indexTmpl.Execute(w, data)
}
