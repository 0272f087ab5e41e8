package internaldefs

import (
	"github.com/MrEthical07/otpauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exporters emit for dispatcher drops.
const AuditDroppedName = "otpauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: otpauth.MetricRegisterSuccess, Name: "otpauth_register_success_total", Help: "Successful registrations."},
	{ID: otpauth.MetricRegisterDuplicate, Name: "otpauth_register_duplicate_total", Help: "Registrations rejected as duplicate identity."},
	{ID: otpauth.MetricLoginPasswordSuccess, Name: "otpauth_login_password_success_total", Help: "Password steps that issued a login code."},
	{ID: otpauth.MetricLoginPasswordFailure, Name: "otpauth_login_password_failure_total", Help: "Password steps rejected with invalid credentials."},
	{ID: otpauth.MetricLoginCodeSuccess, Name: "otpauth_login_code_success_total", Help: "Login codes redeemed."},
	{ID: otpauth.MetricLoginCodeFailure, Name: "otpauth_login_code_failure_total", Help: "Login codes rejected."},
	{ID: otpauth.MetricLoginCodeResent, Name: "otpauth_login_code_resent_total", Help: "Login codes reissued on request."},
	{ID: otpauth.MetricLogout, Name: "otpauth_logout_total", Help: "Logouts."},
	{ID: otpauth.MetricSessionRotated, Name: "otpauth_session_rotated_total", Help: "Session identifiers replaced after login."},
	{ID: otpauth.MetricRecoveryRequest, Name: "otpauth_recovery_request_total", Help: "Recovery requests for known accounts."},
	{ID: otpauth.MetricRecoveryUnknownIdentity, Name: "otpauth_recovery_unknown_identity_total", Help: "Recovery requests naming no account."},
	{ID: otpauth.MetricRecoveryCodeSuccess, Name: "otpauth_recovery_code_success_total", Help: "Reset codes redeemed."},
	{ID: otpauth.MetricRecoveryCodeFailure, Name: "otpauth_recovery_code_failure_total", Help: "Reset codes rejected."},
	{ID: otpauth.MetricRecoveryCodeResent, Name: "otpauth_recovery_code_resent_total", Help: "Reset codes reissued on request."},
	{ID: otpauth.MetricRecoveryComplete, Name: "otpauth_recovery_complete_total", Help: "Passwords replaced through recovery."},
	{ID: otpauth.MetricRecoveryPasswordRejected, Name: "otpauth_recovery_password_rejected_total", Help: "Replacement passwords rejected by policy or mismatch."},
	{ID: otpauth.MetricTokenIssued, Name: "otpauth_token_issued_total", Help: "Single-use codes issued."},
	{ID: otpauth.MetricTokenRedeemed, Name: "otpauth_token_redeemed_total", Help: "Single-use codes redeemed."},
	{ID: otpauth.MetricTokenRejected, Name: "otpauth_token_rejected_total", Help: "Redemptions that matched no live code."},
	{ID: otpauth.MetricDeliverySent, Name: "otpauth_delivery_sent_total", Help: "Codes handed to a mail transport."},
	{ID: otpauth.MetricDeliverySimulated, Name: "otpauth_delivery_simulated_total", Help: "Codes written to the console instead of mailed."},
	{ID: otpauth.MetricDeliveryFailed, Name: "otpauth_delivery_failed_total", Help: "Codes that could not be delivered."},
	{ID: otpauth.MetricFlowOutOfOrder, Name: "otpauth_flow_out_of_order_total", Help: "Steps attempted from the wrong session state."},
	{ID: otpauth.MetricAccessDenied, Name: "otpauth_access_denied_total", Help: "Protected requests from unauthenticated sessions."},
	{ID: otpauth.MetricStorageFault, Name: "otpauth_storage_fault_total", Help: "Persistence failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: otpauth.MetricCredentialVerifyLatency, Name: "otpauth_credential_verify_latency_seconds", Help: "Password verification latency."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are HistogramBounds as seconds, without +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// or truncating as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into Prometheus-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
