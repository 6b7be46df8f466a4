package upstream

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const (
	optOutHeader      = "x-amz-kiro-opt-out"
	agentModeHeader   = "x-amz-kiro-agent-mode"
	agentModeVibe     = "vibe"
	sdkInvocationHdr  = "amz-sdk-invocation-id"
	sdkRequestHdr     = "amz-sdk-request"
	sdkRequestPolicy  = "attempt=1; max=3"
)

// buildHeaders constructs the exact header set the upstream requires for
// generateAssistantResponse. Content-Type, the opt-out/agent-mode pair, a
// composite user-agent encoding the Kiro version and machine id, the Host
// override and a fresh invocation id are all fixed by the upstream's own
// parser, not negotiable per-request.
func buildHeaders(region, kiroVersion, machineID, accessToken string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set(optOutHeader, "true")
	h.Set(agentModeHeader, agentModeVibe)

	ua := fmt.Sprintf("aws-sdk-js/1.0.27 KiroIDE-%s-%s", kiroVersion, machineID)
	h.Set("x-amz-user-agent", ua)
	h.Set("User-Agent", ua)

	h.Set("Host", fmt.Sprintf("q.%s.amazonaws.com", region))
	h.Set(sdkInvocationHdr, uuid.New().String())
	h.Set(sdkRequestHdr, sdkRequestPolicy)
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Connection", "close")
	return h
}

func targetURL(region string) string {
	return fmt.Sprintf("https://q.%s.amazonaws.com/generateAssistantResponse", region)
}
