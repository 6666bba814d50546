package shared

import (
	"fmt"
	"time"
)

// MoraAccrualLockKey builds the redis key guarding a delinquency batch for a cut-off date.
func MoraAccrualLockKey(asOf time.Time) string {
	return fmt.Sprintf("credit:mora:%s:lock", asOf.Format("20060102"))
}

// SavingsInterestLockKey builds the redis key guarding a monthly interest liquidation.
func SavingsInterestLockKey(asOf time.Time) string {
	return fmt.Sprintf("savings:interest:%s:lock", asOf.Format("200601"))
}

// SavingsFeeLockKey builds the redis key guarding a monthly management fee run.
func SavingsFeeLockKey(asOf time.Time) string {
	return fmt.Sprintf("savings:fee:%s:lock", asOf.Format("200601"))
}
