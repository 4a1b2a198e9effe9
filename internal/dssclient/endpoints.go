package dssclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/seantiz/dss/internal/model"
)

// Backend paths.
const (
	pathModels     = "/models"
	pathExecute    = "/dss"
	pathStatus     = "/status/{id}"
	pathExecutions = "/executions"
	pathBestRun    = "/best_run/{id}"
)

// Multipart field names expected by the backend.
const (
	fieldModel     = "model"
	fieldInput     = "input"
	fieldModelName = "model_name"
)

// ExecutionRequest is the payload of a new execution.
type ExecutionRequest struct {
	// Input is the JSON parameter document uploaded as the "input" file.
	Input []byte
	// InputName is the file name sent with Input. Defaults to "input.json".
	InputName string
	// ModelName optionally selects a registered model, overriding the one
	// named inside Input.
	ModelName string
}

// ListModels returns the names of all registered models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx).Get(pathModels)
	c.logRequest(http.MethodGet, pathModels, resp)
	if err := check(ctx, http.MethodGet, pathModels, resp, err); err != nil {
		return nil, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: list models: invalid JSON", ErrParse)
	}
	list := gjson.GetBytes(body, "models")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: list models: missing models array", ErrParse)
	}

	models := make([]string, 0, len(list.Array()))
	for _, m := range list.Array() {
		models = append(models, m.String())
	}
	return models, nil
}

// UploadModel uploads a calibrated model archive. The backend's JSON reply
// is returned unchanged; callers treat it as the model update signal.
func (c *Client) UploadModel(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error) {
	resp, err := c.request(ctx).
		SetFileReader(fieldModel, filename, r).
		Post(pathModels)
	c.logRequest(http.MethodPost, pathModels, resp)
	if err := check(ctx, http.MethodPost, pathModels, resp, err); err != nil {
		return nil, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: upload model: invalid JSON", ErrParse)
	}
	return json.RawMessage(bytes.Clone(body)), nil
}

// SubmitExecution starts a new execution and returns its id.
func (c *Client) SubmitExecution(ctx context.Context, req ExecutionRequest) (string, error) {
	if len(req.Input) == 0 {
		return "", fmt.Errorf("submit execution: input is required")
	}
	name := req.InputName
	if name == "" {
		name = "input.json"
	}

	r := c.request(ctx).SetFileReader(fieldInput, name, bytes.NewReader(req.Input))
	if req.ModelName != "" {
		r.SetFormData(map[string]string{fieldModelName: req.ModelName})
	}

	resp, err := r.Post(pathExecute)
	c.logRequest(http.MethodPost, pathExecute, resp)
	if err := check(ctx, http.MethodPost, pathExecute, resp, err); err != nil {
		return "", err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: submit execution: invalid JSON", ErrParse)
	}
	id := gjson.GetBytes(body, "id")
	if !id.Exists() || id.String() == "" {
		return "", fmt.Errorf("%w: submit execution: missing id", ErrParse)
	}
	return id.String(), nil
}

// GetStatus performs one status poll for the given execution.
func (c *Client) GetStatus(ctx context.Context, id string) (model.ExecutionStatus, error) {
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		Get(pathStatus)
	c.logRequest(http.MethodGet, pathStatus, resp)
	if err := check(ctx, http.MethodGet, pathStatus, resp, err); err != nil {
		return model.ExecutionStatus{}, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return model.ExecutionStatus{}, fmt.Errorf("%w: status %s: expected JSON object", ErrParse, id)
	}

	var st model.ExecutionStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return model.ExecutionStatus{}, fmt.Errorf("%w: status %s: %v", ErrParse, id, err)
	}
	return st, nil
}

// ListExecutions returns the backend's record of previous executions as raw
// JSON objects.
func (c *Client) ListExecutions(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.request(ctx).Get(pathExecutions)
	c.logRequest(http.MethodGet, pathExecutions, resp)
	if err := check(ctx, http.MethodGet, pathExecutions, resp, err); err != nil {
		return nil, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: list executions: invalid JSON", ErrParse)
	}
	list := gjson.GetBytes(body, "executions")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: list executions: missing executions array", ErrParse)
	}

	items := list.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}

// DownloadBestRun streams the best run archive of a completed execution to
// w and returns the number of bytes written.
func (c *Client) DownloadBestRun(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetHeader("Accept", "application/zip").
		SetDoNotParseResponse(true).
		Get(pathBestRun)
	if err != nil {
		return 0, check(ctx, http.MethodGet, pathBestRun, resp, err)
	}
	raw := resp.RawBody()
	defer raw.Close()
	c.logRequest(http.MethodGet, pathBestRun, resp)

	if resp.StatusCode() >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(raw, 256))
		return 0, &StatusError{
			Method: http.MethodGet,
			Path:   pathBestRun,
			Code:   resp.StatusCode(),
			Body:   string(msg),
		}
	}

	n, err := io.Copy(w, raw)
	if err != nil {
		return n, fmt.Errorf("%w: best run %s: %v", ErrNetwork, id, err)
	}
	return n, nil
}
