package otpauth

import (
	"context"
	"errors"
)

const (
	auditEventRegisterSuccess    = "register_success"
	auditEventRegisterFailure    = "register_failure"
	auditEventLoginPassword      = "login_password"
	auditEventLoginCode          = "login_code"
	auditEventLoginCodeResent    = "login_code_resent"
	auditEventLogout             = "logout"
	auditEventSessionRotated     = "session_rotated"
	auditEventAccessDenied       = "access_denied"
	auditEventRecoveryRequest    = "recovery_request"
	auditEventRecoveryCode       = "recovery_code"
	auditEventRecoveryCodeResent = "recovery_code_resent"
	auditEventRecoveryComplete   = "recovery_complete"
	auditEventFlowOutOfOrder     = "flow_out_of_order"
	auditEventDeliveryFailed     = "delivery_failed"
	auditEventPasswordUpdated    = "password_updated"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_or_expired_token"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordMismatch   AuditErrorCode = "password_mismatch"
	auditErrFlowOutOfOrder     AuditErrorCode = "flow_out_of_order"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrStorage            AuditErrorCode = "storage_fault"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	info := requestInfoFrom(ctx)
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        info.ip,
		UserAgent: info.userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrFlowOutOfOrder):
		return auditErrFlowOutOfOrder
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrStorageFault):
		return auditErrStorage
	default:
		return auditErrInternal
	}
}
