package web

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"credit-risk/internal/ml"

	"github.com/rs/zerolog/log"
)

type numericInput struct {
	Name  string
	Label string
	Min   float64
	Max   float64
	Step  float64
	Value string
}

type selectOption struct {
	Value    string
	Label    string
	Selected bool
}

type selectInput struct {
	Name    string
	Label   string
	Options []selectOption
}

type resultView struct {
	ml.Result
	ID string
}

func (r resultView) IsBad() bool { return r.Label == ml.LabelBad }

type pageData struct {
	Numerics     []numericInput
	Selects      []selectInput
	Result       *resultView
	Error        string
	ErrorCode    string
	Unavailable  string
	ModelVersion string
}

var templateFuncs = template.FuncMap{
	"pct": func(p float64) string { return strconv.FormatFloat(p*100, 'f', 2, 64) },
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}

// renderPage draws the form with values, plus either the result or the error.
func (s *Server) renderPage(w http.ResponseWriter, status int, values url.Values, res *scored, err error) {
	data := pageData{}

	for _, n := range s.schema.Numerics() {
		data.Numerics = append(data.Numerics, numericInput{
			Name:  n.Name,
			Label: n.Label,
			Min:   n.Min,
			Max:   n.Max,
			Step:  n.Step,
			Value: values.Get(n.Name),
		})
	}
	for _, a := range s.schema.Attributes() {
		in := selectInput{Name: a.Name, Label: a.Label}
		current := values.Get(a.Name)
		for i, v := range a.Values {
			in.Options = append(in.Options, selectOption{
				Value:    v,
				Label:    a.ValueLabel(i),
				Selected: v == current,
			})
		}
		data.Selects = append(data.Selects, in)
	}

	if s.scorer == nil {
		data.Unavailable = s.loadErr.Error()
	} else {
		data.ModelVersion = s.scorer.Metadata().Version
	}
	if res != nil {
		data.Result = &resultView{Result: res.Result, ID: res.ID}
	}
	if err != nil && s.scorer != nil {
		_, data.ErrorCode = classify(err)
		data.Error = err.Error()
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("short write rendering page")
	}
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Credit Risk Prediction</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0f172a; color: #e2e8f0; line-height: 1.5; }
        .container { max-width: 960px; margin: 0 auto; padding: 24px; }
        header { margin-bottom: 24px; }
        header h1 { font-size: 1.8rem; }
        header p { color: #94a3b8; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 8px; padding: 20px; margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(260px, 1fr)); gap: 16px; }
        label { display: block; font-size: 0.85rem; color: #cbd5e1; margin-bottom: 4px; }
        input, select { width: 100%; padding: 8px; border-radius: 4px; border: 1px solid #475569; background: #0f172a; color: #e2e8f0; }
        button { margin-top: 20px; padding: 10px 24px; border: 0; border-radius: 4px; background: #3b82f6; color: #fff; font-size: 1rem; cursor: pointer; }
        button:disabled { background: #475569; cursor: not-allowed; }
        .good { color: #22c55e; }
        .bad { color: #ef4444; }
        .error { border-color: #ef4444; color: #fecaca; }
        .headline { font-size: 1.4rem; font-weight: 600; }
        .bars { margin-top: 16px; }
        .bar-row { display: flex; align-items: center; gap: 12px; margin: 6px 0; }
        .bar-row span { width: 90px; font-size: 0.85rem; }
        .bar { height: 20px; border-radius: 4px; }
        .bar.good { background: #22c55e; }
        .bar.bad { background: #ef4444; }
        .muted { color: #64748b; font-size: 0.8rem; }
        #live { display: none; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Credit Risk Prediction</h1>
            <p>Enter the applicant's details to estimate the probability of bad credit.</p>
        </header>

        {{if .Unavailable}}
        <div class="card error" id="unavailable">
            <p class="headline">Model unavailable</p>
            <p>Predictions are disabled: {{.Unavailable}}</p>
        </div>
        {{end}}

        {{if .Error}}
        <div class="card error" id="error" data-code="{{.ErrorCode}}">
            <p class="headline">Submission rejected</p>
            <p>{{.Error}}</p>
        </div>
        {{end}}

        {{with .Result}}
        <div class="card" id="result">
            <p class="headline {{if .IsBad}}bad{{else}}good{{end}}">Prediction: {{if .IsBad}}Bad payer{{else}}Good payer{{end}}</p>
            <p>Probability of bad credit: <strong>{{pct .Probabilities.Bad}}%</strong></p>
            <p>Probability of good credit: {{pct .Probabilities.Good}}%</p>
            <div class="bars">
                <div class="bar-row"><span>Good</span><div class="bar good" style="width: {{pct .Probabilities.Good}}%"></div></div>
                <div class="bar-row"><span>Bad</span><div class="bar bad" style="width: {{pct .Probabilities.Bad}}%"></div></div>
            </div>
            <p class="muted">Model {{.ModelVersion}}{{if .ID}} · submission {{.ID}}{{end}}</p>
        </div>
        {{end}}

        <div class="card" id="live">
            <p class="headline" id="live-label"></p>
            <p>Probability of bad credit: <strong id="live-bad"></strong></p>
            <div class="bars">
                <div class="bar-row"><span>Good</span><div class="bar good" id="live-bar-good"></div></div>
                <div class="bar-row"><span>Bad</span><div class="bar bad" id="live-bar-bad"></div></div>
            </div>
        </div>

        <form class="card" id="risk-form" method="post" action="/predict">
            <div class="grid">
                {{range .Numerics}}
                <div>
                    <label for="{{.Name}}">{{.Label}} ({{num .Min}} to {{num .Max}})</label>
                    <input type="number" id="{{.Name}}" name="{{.Name}}" min="{{num .Min}}" max="{{num .Max}}" step="{{num .Step}}" value="{{.Value}}" required>
                </div>
                {{end}}
                {{range .Selects}}
                <div>
                    <label for="{{.Name}}">{{.Label}}</label>
                    <select id="{{.Name}}" name="{{.Name}}">
                        {{range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
                    </select>
                </div>
                {{end}}
            </div>
            <button type="submit"{{if .Unavailable}} disabled{{end}}>Predict</button>
            {{if .ModelVersion}}<p class="muted">Model {{.ModelVersion}}</p>{{end}}
        </form>
    </div>

    {{if not .Unavailable}}
    <script>
        (function () {
            var form = document.getElementById('risk-form');
            if (!form || !window.WebSocket) { return; }
            var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            var ws = new WebSocket(scheme + location.host + '/ws');

            function profile() {
                var out = {};
                Array.prototype.forEach.call(form.elements, function (el) {
                    if (!el.name) { return; }
                    out[el.name] = el.type === 'number' ? Number(el.value) : el.value;
                });
                return out;
            }

            function show(msg) {
                var live = document.getElementById('live');
                var label = document.getElementById('live-label');
                live.style.display = 'block';
                if (msg.error) {
                    label.className = 'headline bad';
                    label.textContent = 'Rejected: ' + msg.error;
                    return;
                }
                var bad = (msg.probabilities.p_bad * 100).toFixed(2);
                var good = (msg.probabilities.p_good * 100).toFixed(2);
                label.className = 'headline ' + msg.label;
                label.textContent = 'Prediction: ' + (msg.label === 'bad' ? 'Bad payer' : 'Good payer');
                document.getElementById('live-bad').textContent = bad + '%';
                document.getElementById('live-bar-good').style.width = good + '%';
                document.getElementById('live-bar-bad').style.width = bad + '%';
            }

            ws.onmessage = function (event) { show(JSON.parse(event.data)); };
            form.addEventListener('change', function () {
                if (ws.readyState === WebSocket.OPEN) { ws.send(JSON.stringify(profile())); }
            });
        })();
    </script>
    {{end}}
</body>
</html>
`
