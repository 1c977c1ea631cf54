package domain

import "errors"

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrInstallationNotFound = errors.New("installation not found")
	ErrUserGroupNotFound    = errors.New("user group not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCronExpr      = errors.New("invalid cron expression")
	ErrInvalidTimezone      = errors.New("invalid timezone")
	ErrMissingCredential    = errors.New("no PagerDuty token on the task or its installation")
	ErrGroupTooLarge        = errors.New("current group is much larger than the on-call roster")
)
