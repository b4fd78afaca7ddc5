package errors

var (
	ErrRequestNotFound      = NotFound("request not found")
	ErrConversationNotFound = NotFound("conversation not found")
	ErrNotParticipant       = Forbidden("not part of this request")
	ErrWrongRole            = Forbidden("action not permitted for this role")
	ErrInvalidServiceType   = InvalidArg("service_type must be message, video_call or in_person")
	ErrSelfRequest          = InvalidArg("cannot request your own service")
	ErrTerminalState        = FailedPrecondition("request is already closed")
	ErrInvalidTransition    = FailedPrecondition("transition not allowed from current status")
	ErrReasonRequired       = InvalidArg("cancellation reason is required")
	ErrConfirmationRequired = InvalidArg("rejection must be confirmed")
	ErrInvalidRating        = InvalidArg("rating must be between 1 and 5")
	ErrNotCompleted         = FailedPrecondition("request is not completed")
	ErrAlreadyRated         = FailedPrecondition("request has already been rated")
	ErrPaymentRequired      = PaymentRequired("payment must be completed first")
	ErrEmptyMessage         = InvalidArg("message content is required")
	ErrNotVideoCall         = FailedPrecondition("request is not a video call")
	ErrNotInPerson          = FailedPrecondition("location sharing is only for in-person requests")
	ErrNotAccepted          = FailedPrecondition("request is not accepted")
	ErrCallNotPending       = FailedPrecondition("no pending call to accept")
	ErrCallNotActive        = FailedPrecondition("call is not active")
	ErrCallNotEnded         = FailedPrecondition("call has not ended")
	ErrCallInProgress       = FailedPrecondition("a call is already active")
	ErrRoomMismatch         = Conflict("call room has changed")
	ErrInvalidLocation      = InvalidArg("invalid location coordinates")
	ErrConflict             = Conflict("request was changed by the other party")
)
