package processor

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
)

// TemplateSource loads stored job graphs.
type TemplateSource interface {
	Graph(ctx context.Context, templateID string) (contracts.Graph, error)
}

// ImageSource names where a single input image comes from.
type ImageSource struct {
	Kind     string // "url", "base64" or "object_key"
	Value    string
	Filename string
}

// ParsedJob is a validated Request.
type ParsedJob struct {
	Graph      contracts.Graph
	TemplateID string

	Single *ImageSource
	Items  []json.RawMessage
	IsList bool

	Target  contracts.InputPatch
	Timeout time.Duration
	APIKey  string
}

// WantsInjection reports whether the request names a node field for the
// uploaded image.
func (j *ParsedJob) WantsInjection() bool {
	return j.Target.NodeID != "" && j.Target.Field != ""
}

// HasImage reports whether any image input was supplied.
func (j *ParsedJob) HasImage() bool {
	return j.Single != nil || j.IsList
}

// JobParser validates requests.
type JobParser struct {
	templates      TemplateSource
	validate       *validator.Validate
	defaultTimeout time.Duration
}

// NewJobParser returns a parser. templates may be nil, in which case
// template_id requests are rejected.
func NewJobParser(templates TemplateSource, defaultTimeout time.Duration) *JobParser {
	if defaultTimeout <= 0 {
		defaultTimeout = 300 * time.Second
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &JobParser{templates: templates, validate: v, defaultTimeout: defaultTimeout}
}

// Decode reads a request body. A body of the form {"input": {...}} is
// unwrapped.
func Decode(raw []byte) (Request, error) {
	var req Request

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return req, errors.Validation("request must be a JSON object")
	}
	if inner, ok := probe["input"]; ok && probe["graph"] == nil && probe["workflow"] == nil && probe["template_id"] == nil {
		var innerObj map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerObj); err != nil || innerObj == nil {
			return req, errors.ValidationField("input", "`input` must be an object")
		}
		raw = inner
	}

	if err := json.Unmarshal(raw, &req); err != nil {
		return req, errors.WrapWithCode(err, errors.CodeValidation, "request.decode", "malformed request")
	}
	return req, nil
}

// Parse validates req and resolves its graph.
func (jp *JobParser) Parse(ctx context.Context, req Request) (*ParsedJob, error) {
	if err := jp.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	j := &ParsedJob{
		TemplateID: strings.TrimSpace(req.TemplateID),
		Target: contracts.InputPatch{
			NodeID: req.ImageNodeID,
			Field:  strings.TrimSpace(req.ImageField),
		},
		Timeout: jp.defaultTimeout,
		APIKey:  firstNonEmpty(req.Credentials, req.ComfyOrgAPIKey),
	}
	if req.TimeoutS > 0 {
		j.Timeout = time.Duration(req.TimeoutS) * time.Second
	}

	graph, err := jp.resolveGraph(ctx, req, j.TemplateID)
	if err != nil {
		return nil, err
	}
	j.Graph = graph

	if err := jp.parseImages(req, j); err != nil {
		return nil, err
	}

	if j.WantsInjection() && !j.HasImage() {
		return nil, errors.Validation("provide either `images` or (`image_url`/`image_base64`/`image_object_key`)")
	}
	return j, nil
}

func (jp *JobParser) resolveGraph(ctx context.Context, req Request, templateID string) (contracts.Graph, error) {
	field, raw := "graph", req.Graph
	if isAbsent(raw) && !isAbsent(req.Workflow) {
		field, raw = "workflow", req.Workflow
	}

	if !isAbsent(raw) {
		g, err := contracts.ParseGraph(raw)
		if err != nil {
			return nil, errors.ValidationField(field, "`"+field+"` must be an object")
		}
		return g, nil
	}

	if templateID == "" {
		return nil, errors.ValidationField("graph", "`graph` must be an object")
	}
	if jp.templates == nil {
		return nil, errors.ValidationField("template_id", "templates are not available")
	}

	g, err := jp.templates.Graph(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return g.Clone()
}

func (jp *JobParser) parseImages(req Request, j *ParsedJob) error {
	if !isAbsent(req.Images) {
		var items []json.RawMessage
		if err := json.Unmarshal(req.Images, &items); err != nil {
			return errors.ValidationField("images", "`images` must be a list")
		}
		j.Items = items
		j.IsList = true
		return nil
	}

	filename := strings.TrimSpace(req.ImageFilename)
	switch {
	case strings.TrimSpace(req.ImageURL) != "":
		j.Single = &ImageSource{Kind: SourceURL, Value: strings.TrimSpace(req.ImageURL), Filename: filename}
	case strings.TrimSpace(req.ImageBase64) != "":
		j.Single = &ImageSource{Kind: SourceBase64, Value: req.ImageBase64, Filename: filename}
	case strings.TrimSpace(req.ImageObjectKey) != "":
		key := strings.TrimSpace(req.ImageObjectKey)
		if filename == "" {
			filename = filenameFromKey(key)
		}
		j.Single = &ImageSource{Kind: SourceObjectKey, Value: key, Filename: filename}
	}
	if j.Single != nil && j.Single.Filename == "" {
		j.Single.Filename = DefaultImageFilename
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.WrapWithCode(err, errors.CodeValidation, "request.validate", "invalid request")
	}
	fe := verrs[0]
	msg := "`" + fe.Field() + "` failed " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return errors.ValidationField(fe.Field(), msg)
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
