package sheerid

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"veriflow/internal/config"
	"veriflow/internal/services"
	"veriflow/internal/workflow"
)

const userAgent = "Veriflow-Go/0.1.0"

// Step names with protocol-specific request bodies.
const (
	stepCollectMilitaryStatus = "collectMilitaryStatus"
	stepEmailLoop             = "emailLoop"
	stepCompleteDocUpload     = "completeDocUpload"
)

var verificationIDRe = regexp.MustCompile(`(?i)verificationId=([a-f0-9]+)`)

// ParseVerificationID extracts the remote correlation identifier from a
// verification URL handed to an operator.
func ParseVerificationID(url string) (string, bool) {
	match := verificationIDRe.FindStringSubmatch(url)
	if match == nil {
		return "", false
	}
	return strings.ToLower(match[1]), true
}

// Client speaks the remote step protocol: one POST per step against
// /rest/v2/verification/{id}/step/{name}, with upload steps expanding into
// the request-slot / PUT / complete exchange. It performs no retries; the
// workflow runner owns retry policy.
type Client struct {
	baseURL     string
	transport   Transport
	fingerprint string
}

// NewClient builds a step client from configuration. When transport is nil a
// plain HTTPTransport with the configured request timeout is used.
func NewClient(cfg *config.Config, transport Transport) *Client {
	if transport == nil {
		timeout := time.Duration(cfg.SheerID.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport = &HTTPTransport{Client: &http.Client{Timeout: timeout}}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.SheerID.BaseURL, "/"),
		transport:   transport,
		fingerprint: newFingerprint(),
	}
}

// newFingerprint mimics the 32-hex-char device fingerprint browsers attach
// to personal-info submissions.
func newFingerprint() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ExecuteStep performs one logical step call and maps the response envelope
// to a step outcome. Transport failures, protocol violations, and explicit
// denials come back as the corresponding marker errors.
func (c *Client) ExecuteStep(ctx context.Context, req workflow.StepRequest) (*workflow.StepOutcome, error) {
	if strings.TrimSpace(req.VerificationID) == "" {
		return nil, services.Wrap(services.ErrProtocol, req.Name, "execute", "no verification id on task", nil)
	}

	if req.Kind == workflow.KindUploadDocument {
		return c.uploadDocument(ctx, req)
	}

	body, err := c.stepBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Do(ctx, http.MethodPost, c.stepURL(req.VerificationID, req.Name), body)
	if err != nil {
		return nil, transportError(req.Name, "step request", err)
	}
	return c.envelope(req, resp)
}

// uploadDocument runs the three-phase document exchange: request an upload
// slot, PUT the generated bytes to the presigned URL, then complete the
// step. The whole exchange is one logical step call from the runner's view.
func (c *Client) uploadDocument(ctx context.Context, req workflow.StepRequest) (*workflow.StepOutcome, error) {
	doc := req.Document
	if doc == nil || len(doc.Bytes) == 0 {
		return nil, services.Wrap(services.ErrProtocol, req.Name, "upload", "no document bytes supplied", nil)
	}

	manifest := map[string]any{
		"files": []map[string]any{{
			"fileName": doc.FileName,
			"mimeType": doc.ContentType,
			"fileSize": len(doc.Bytes),
		}},
	}
	slot, err := c.transport.Do(ctx, http.MethodPost, c.stepURL(req.VerificationID, req.Name), manifest)
	if err != nil {
		return nil, transportError(req.Name, "request upload slot", err)
	}
	if slot.StatusCode != http.StatusOK {
		return nil, c.remoteFailure(req.Name, slot)
	}
	uploadURL := firstUploadURL(slot.Fields)
	if uploadURL == "" {
		return nil, services.Wrap(services.ErrProtocol, req.Name, "upload", "response carried no upload URL", nil)
	}

	if err := c.transport.Upload(ctx, uploadURL, doc.ContentType, doc.Bytes); err != nil {
		return nil, transportError(req.Name, "upload document", err)
	}

	complete, err := c.transport.Do(ctx, http.MethodPost, c.stepURL(req.VerificationID, stepCompleteDocUpload), nil)
	if err != nil {
		return nil, transportError(req.Name, "complete upload", err)
	}
	return c.envelope(req, complete)
}

func (c *Client) stepURL(verificationID, step string) string {
	return fmt.Sprintf("%s/rest/v2/verification/%s/step/%s", c.baseURL, verificationID, step)
}

// stepBody shapes the request for the named step. The status and email-loop
// steps carry single-purpose bodies; everything else submits the personal
// info form.
func (c *Client) stepBody(req workflow.StepRequest) (map[string]any, error) {
	switch req.Name {
	case stepCollectMilitaryStatus:
		return map[string]any{"status": req.Fields["status"]}, nil
	case stepEmailLoop:
		return map[string]any{"emailToken": req.Fields["emailToken"]}, nil
	}
	return c.personalInfoBody(req)
}

func (c *Client) personalInfoBody(req workflow.StepRequest) (map[string]any, error) {
	fields := req.Fields
	body := map[string]any{
		"firstName":   fields["firstName"],
		"lastName":    fields["lastName"],
		"birthDate":   fields["birthDate"],
		"email":       fields["email"],
		"phoneNumber": fields["phoneNumber"],
		"locale":      valueOr(fields["locale"], "en-US"),
		"country":     valueOr(fields["country"], "US"),
		"metadata": map[string]any{
			"marketConsentValue":    false,
			"refererUrl":            "",
			"verificationId":        req.VerificationID,
			"deviceFingerprintHash": c.fingerprint,
		},
	}

	if rawID := fields["organization.id"]; rawID != "" {
		orgID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, services.Wrap(services.ErrProtocol, req.Name, "build request", "organization id is not numeric: "+rawID, nil)
		}
		body["organization"] = map[string]any{
			"id":   orgID,
			"name": fields["organization.name"],
		}
	}
	if discharge := fields["dischargeDate"]; discharge != "" {
		body["dischargeDate"] = discharge
	}
	return body, nil
}

// envelope turns a response into a step outcome or a classified error.
func (c *Client) envelope(req workflow.StepRequest, resp *Response) (*workflow.StepOutcome, error) {
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.Wrap(services.ErrTransport, req.Name, "step response",
			fmt.Sprintf("server error (HTTP %d)", resp.StatusCode), nil)
	}

	currentStep := stringField(resp.Fields, "currentStep")
	if resp.StatusCode != http.StatusOK || currentStep == "error" || currentStep == "rejected" {
		return nil, c.remoteFailure(req.Name, resp)
	}

	outcome := &workflow.StepOutcome{
		NextStepName:   currentStep,
		ServerStatus:   currentStep,
		SubmissionURL:  stringField(resp.Fields, "submissionUrl"),
		RedirectURL:    stringField(resp.Fields, "redirectUrl"),
		RewardCode:     stringField(resp.Fields, "rewardCode"),
		VerificationID: stringField(resp.Fields, "verificationId"),
		RawFields:      resp.Fields,
	}
	if outcome.RewardCode == "" {
		if reward, ok := resp.Fields["rewardData"].(map[string]any); ok {
			outcome.RewardCode = stringField(reward, "rewardCode")
		}
	}
	return outcome, nil
}

// remoteFailure classifies an error envelope. Eligibility denials become
// rejections carrying the remote's reason and the suggested operator action;
// rate limiting stays retryable; anything else is a protocol fault.
func (c *Client) remoteFailure(step string, resp *Response) error {
	errorIDs := stringSlice(resp.Fields, "errorIds")
	reasons := stringSlice(resp.Fields, "rejectionReasons")

	if category, ok := categorize(errorIDs); ok {
		detail := fmt.Sprintf("%s (%s; suggested action: %s)",
			strings.Join(errorIDs, ", "), category.message, category.action)
		if category.marker == services.ErrRejected {
			return &services.RejectionError{Step: step, Reason: detail}
		}
		return services.Wrap(category.marker, step, "step response", detail, nil)
	}
	if len(reasons) > 0 {
		return &services.RejectionError{Step: step, Reason: strings.Join(reasons, ", ")}
	}

	detail := strings.Join(errorIDs, ", ")
	if detail == "" {
		detail = stringField(resp.Fields, "systemErrorMessage")
	}
	if detail == "" {
		detail = fmt.Sprintf("unexpected response (HTTP %d, currentStep %q)",
			resp.StatusCode, stringField(resp.Fields, "currentStep"))
	}
	return services.Wrap(services.ErrProtocol, step, "step response", detail, nil)
}

// errorCategory pairs a known remote error id with the operator guidance the
// verifier surfaced for it.
type errorCategory struct {
	marker  error
	action  string
	message string
}

var errorCategories = map[string]errorCategory{
	"notApproved":               {services.ErrRejected, "change_ip", "not approved, try a different IP"},
	"limitExceeded":             {services.ErrRejected, "change_profile", "profile overused, try a different subject"},
	"invalidPersonInfo":         {services.ErrRejected, "change_profile", "invalid info, try a different subject"},
	"invalidBirthDate":          {services.ErrRejected, "change_profile", "invalid birth date"},
	"verificationLimitExceeded": {services.ErrTransport, "wait", "rate limited, wait and retry"},
	"maxRetriesReached":         {services.ErrTransport, "wait", "max retries, wait 24h"},
}

func categorize(errorIDs []string) (errorCategory, bool) {
	for _, id := range errorIDs {
		if category, ok := errorCategories[id]; ok {
			return category, true
		}
	}
	return errorCategory{}, false
}

// transportError wraps a network failure, distinguishing timeouts from
// connection failures in the logged reason.
func transportError(step, operation string, err error) error {
	reason := "connection failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = "timeout"
	}
	return services.Wrap(services.ErrTransport, step, operation, reason, err)
}

func firstUploadURL(fields map[string]any) string {
	documents, ok := fields["documents"].([]any)
	if !ok || len(documents) == 0 {
		return ""
	}
	first, ok := documents[0].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(first, "uploadUrl")
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func stringSlice(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
