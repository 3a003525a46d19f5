package data

import (
	apperrors "github.com/target/crew-api/internal/errors"
)

// Shared sentinel errors for data-layer stores.
var (
	ErrJobIDRequired          = apperrors.ValidationField("job_id", "job id is required")
	ErrIdempotencyKeyRequired = apperrors.ValidationField("idempotency_key", "idempotency key is required")
)
