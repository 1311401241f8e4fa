// Package sheerid implements the remote verification step protocol: one
// POST per step against /rest/v2/verification/{id}/step/{name}, with
// document steps expanding into the request-slot, presigned PUT, and
// complete exchange. The client performs no retries and holds no task state;
// it maps response envelopes to step outcomes and classifies failures into
// the shared error taxonomy for the workflow runner to act on.
package sheerid
