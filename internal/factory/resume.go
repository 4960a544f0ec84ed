package factory

import (
	"context"
	"strconv"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// ResumeRequest parameterizes the resume protocol's first step (spec.md
// §4.5): ResetIfRunning selects COLD_RESUME (kill running TIs) over
// HOT_RESUME (let them continue).
type ResumeRequest struct {
	WorkflowID        int64 `json:"workflow_id"`
	ResetIfRunning    bool  `json:"reset_if_running"`
	IncreaseResources bool  `json:"increase_resources"`
}

// Resume drives the full resume protocol end to end: signal resume,
// reset task statuses, optionally bump resources on prior RESOURCE_ERROR
// instances, then create the new active WorkflowRun (spec.md §4.5 steps
// 1-5). It returns the newly active WorkflowRun's id.
func (f *Factory) Resume(ctx context.Context, req ResumeRequest, serverVersion string) (int64, error) {
	signalPath := "/workflow/" + itoa(req.WorkflowID) + "/set_resume"
	if err := f.http.Do(ctx, "POST", signalPath, req, nil); err != nil {
		return 0, err
	}

	resetPath := "/workflow/" + itoa(req.WorkflowID) + "/reset_task_statuses"
	resetBody := map[string]any{"hot_resume": !req.ResetIfRunning}
	if err := f.http.Do(ctx, "POST", resetPath, resetBody, nil); err != nil {
		return 0, err
	}

	if req.IncreaseResources {
		increasePath := "/workflow/" + itoa(req.WorkflowID) + "/increase_resources"
		if err := f.http.Do(ctx, "POST", increasePath, nil, nil); err != nil {
			return 0, err
		}
	}

	wfr, err := f.CreateWorkflowRun(ctx, req.WorkflowID, serverVersion)
	if err != nil {
		return 0, err
	}
	return wfr.ID, nil
}
