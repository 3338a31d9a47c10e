package processor

import (
	"encoding/json"

	contracts "renderbridge/internal/contracts/renderserver"
)

// Request is an inbound job request.
type Request struct {
	// Graph is the job graph. Workflow is accepted as an alias; TemplateID
	// loads a stored graph when neither is set.
	Graph      json.RawMessage `json:"graph,omitempty"`
	Workflow   json.RawMessage `json:"workflow,omitempty"`
	TemplateID string          `json:"template_id,omitempty"`

	// Single-image input: one of ImageURL, ImageBase64 or ImageObjectKey.
	ImageURL       string `json:"image_url,omitempty" validate:"omitempty,http_url"`
	ImageBase64    string `json:"image_base64,omitempty"`
	ImageObjectKey string `json:"image_object_key,omitempty"`
	ImageFilename  string `json:"image_filename,omitempty" validate:"omitempty,max=255"`

	// Images is a list of {name, image} items. It takes precedence over the
	// single-image fields.
	Images json.RawMessage `json:"images,omitempty"`

	ImageNodeID contracts.NodeID `json:"image_node_id,omitempty"`
	ImageField  string           `json:"image_field,omitempty"`

	TimeoutS int `json:"timeout_s,omitempty" validate:"gte=0,lte=86400"`

	Credentials    string `json:"credentials,omitempty"`
	ComfyOrgAPIKey string `json:"comfy_org_api_key,omitempty"`
}

// ImageItem is one entry of Request.Images.
type ImageItem struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Response is the result of a run. On a fatal error it still carries the
// partial state gathered so far.
type Response struct {
	JobID     string   `json:"job_id,omitempty"`
	ImageURLs []string `json:"image_urls"`
	VideoURLs []string `json:"video_urls"`
	Errors    []string `json:"errors,omitempty"`
}

func newResponse() *Response {
	return &Response{ImageURLs: []string{}, VideoURLs: []string{}}
}

func (r *Response) addErrors(errs ...error) {
	for _, err := range errs {
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
	}
}
