package api

import (
	"html/template"
	"net/http"

	"github.com/seantiz/dss/internal/render"
)

// indexTemplate is the results page. Blocks present at load time are
// rendered server-side. The script submits both forms in place, follows new
// executions over their event streams, re-fetches a block on every status,
// refreshes the model list after an upload and lists previous executions.
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>DSS</title>
</head>
<body>
<form id="model-form" enctype="multipart/form-data">
  <input type="file" name="model"> <button type="submit">Upload model</button>
</form>
<form id="dss-form" enctype="multipart/form-data">
  <select id="model-select" name="model_name">
    <option value="" selected>default model</option>
    {{range .Models}}<option value="{{.}}">{{.}}</option>{{end}}
  </select>
  <input type="file" name="input"> <button type="submit">Execute</button>
</form>
<div id="results">
{{range .Blocks}}{{.HTML}}
{{end}}</div>
<ul id="history"></ul>
<script>
const results = document.getElementById("results");

function showBlock(id) {
  fetch("/v1/executions/" + encodeURIComponent(id) + "/block")
    .then(r => r.ok ? r.text() : null)
    .then(html => {
      if (html === null) {
        return;
      }
      const el = document.getElementById("result-" + id);
      if (el === null) {
        results.insertAdjacentHTML("beforeend", html);
      } else {
        el.outerHTML = html;
      }
      results.scrollTop = results.scrollHeight;
    });
}

function follow(id) {
  const src = new EventSource("/v1/executions/" + encodeURIComponent(id) + "/events");
  src.onmessage = () => showBlock(id);
  src.addEventListener("done", () => src.close());
}

function refreshModels() {
  const sel = document.getElementById("model-select");
  return fetch("/v1/models")
    .then(r => r.json())
    .then(data => {
      sel.options.length = 1;
      (data.models || []).forEach(name => sel.add(new Option(name, name)));
      sel.value = "";
    });
}

function loadHistory() {
  const list = document.getElementById("history");
  return fetch("/v1/executions/history")
    .then(r => r.json())
    .then(data => {
      list.replaceChildren();
      (data.executions || []).forEach(item => {
        const li = document.createElement("li");
        li.textContent = JSON.stringify(item);
        list.appendChild(li);
      });
    });
}

document.getElementById("dss-form").addEventListener("submit", event => {
  event.preventDefault();
  fetch("/v1/executions", {method: "POST", body: new FormData(event.target)})
    .then(r => r.json())
    .then(data => {
      if (data.id) {
        follow(data.id);
      }
    });
});

document.getElementById("model-form").addEventListener("submit", event => {
  event.preventDefault();
  fetch("/v1/models", {method: "POST", body: new FormData(event.target)})
    .then(r => r.json())
    .then(() => refreshModels());
});

loadHistory();
{{range .Active}}follow({{.}});
{{end}}</script>
</body>
</html>
`))

type indexData struct {
	Models []string
	Blocks []render.Block
	Active []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Blocks: s.engine.Renderer().Blocks(),
		Active: s.engine.Active(),
	}

	// A missing model list should not hide the results.
	models, err := s.client.ListModels(r.Context())
	if err != nil {
		s.logger.Warn("list models for index", "error", err)
	}
	data.Models = models

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("render index", "error", err)
	}
}
