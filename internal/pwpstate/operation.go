// Package pwpstate models the password policy state extended operation:
// the operation-type catalog, typed operands, and the BER encoding of
// request and response values exchanged with the directory server.
package pwpstate

import (
	"fmt"
)

// RequestOID identifies the password policy state extended request.
const RequestOID = "1.3.6.1.4.1.30221.1.6.1"

// ResponseOID identifies the password policy state extended response.
const ResponseOID = "1.3.6.1.4.1.30221.1.6.2"

// OperationType is the numeric operation selector carried in each
// request operation element.
type OperationType int

// The numeric values follow the server's assignment for the extended
// operation, so the order is historical rather than thematic: later
// server releases appended new types at the end.
const (
	OpTypeGetPasswordPolicyDN OperationType = iota
	OpTypeGetAccountIsDisabled
	OpTypeSetAccountIsDisabled
	OpTypeClearAccountIsDisabled
	OpTypeGetAccountExpirationTime
	OpTypeSetAccountExpirationTime
	OpTypeClearAccountExpirationTime
	OpTypeGetSecondsUntilAccountExpiration
	OpTypeGetPasswordChangedTime
	OpTypeSetPasswordChangedTime
	OpTypeClearPasswordChangedTime
	OpTypeGetPasswordExpirationWarnedTime
	OpTypeSetPasswordExpirationWarnedTime
	OpTypeClearPasswordExpirationWarnedTime
	OpTypeGetSecondsUntilPasswordExpiration
	OpTypeGetSecondsUntilPasswordExpirationWarning
	OpTypeGetAuthFailureTimes
	OpTypeAddAuthFailureTime
	OpTypeSetAuthFailureTimes
	OpTypeClearAuthFailureTimes
	OpTypeGetSecondsUntilAuthFailureUnlock
	OpTypeGetRemainingAuthFailureCount
	OpTypeGetLastLoginTime
	OpTypeSetLastLoginTime
	OpTypeClearLastLoginTime
	OpTypeGetSecondsUntilIdleLockout
	OpTypeGetPasswordIsReset
	OpTypeSetPasswordIsReset
	OpTypeClearPasswordIsReset
	OpTypeGetSecondsUntilPasswordResetLockout
	OpTypeGetGraceLoginUseTimes
	OpTypeAddGraceLoginUseTime
	OpTypeSetGraceLoginUseTimes
	OpTypeClearGraceLoginUseTimes
	OpTypeGetRemainingGraceLoginCount
	OpTypeGetPasswordChangedByRequiredTime
	OpTypeSetPasswordChangedByRequiredTime
	OpTypeClearPasswordChangedByRequiredTime
	OpTypeGetSecondsUntilRequiredChangeTime
	OpTypeGetPasswordHistory // no subcommand; servers no longer return the stored history
	OpTypeClearPasswordHistory
	OpTypeGetHasRetiredPassword
	OpTypeGetPasswordRetiredTime
	OpTypeGetRetiredPasswordExpirationTime
	OpTypeClearRetiredPassword
	OpTypeGetAccountUsabilityNotices
	OpTypeGetAccountUsabilityWarnings
	OpTypeGetAccountUsabilityErrors
	OpTypeGetAccountIsUsable
	OpTypeGetAccountIsNotYetActive
	OpTypeGetAccountIsExpired
	OpTypeGetPasswordExpirationTime
	OpTypeGetAccountIsFailureLocked
	OpTypeSetAccountIsFailureLocked
	OpTypeGetFailureLockoutTime
	OpTypeGetAccountIsIdleLocked
	OpTypeGetIdleLockoutTime
	OpTypeGetAccountIsPasswordResetLocked
	OpTypeGetPasswordResetLockoutTime
	OpTypeGetAccountActivationTime
	OpTypeSetAccountActivationTime
	OpTypeClearAccountActivationTime
	OpTypeGetSecondsUntilAccountActivation
	OpTypeGetLastLoginIPAddress
	OpTypeSetLastLoginIPAddress
	OpTypeClearLastLoginIPAddress
	OpTypeGetAvailableSASLMechanisms
	OpTypeGetAvailableOTPDeliveryMechanisms
	OpTypeGetHasTOTPSharedSecret
	OpTypeGetRegisteredYubiKeyIDs
	OpTypeAddRegisteredYubiKeyID
	OpTypeRemoveRegisteredYubiKeyID
	OpTypeSetRegisteredYubiKeyIDs
	OpTypeClearRegisteredYubiKeyIDs
	OpTypeAddTOTPSharedSecret
	OpTypeRemoveTOTPSharedSecret
	OpTypeSetTOTPSharedSecrets
	OpTypeClearTOTPSharedSecrets
	OpTypeGetHasRegisteredYubiKeyID
	OpTypeGetPasswordIsExpired
	OpTypeGetPasswordHistoryCount
)

// OperandKind describes the values an operation carries on the wire.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandBoolean
	OperandTimestamp     // single generalized-time value, defaults to "now"
	OperandTimestampList // zero or more generalized-time values
	OperandString        // single required string value
	OperandStringList    // zero or more opaque string values
)

// Operation is one operation element of a request or response value:
// an operation type plus its encoded string values.
type Operation struct {
	Type   OperationType
	Values []string
}

// NewOperation creates a value-less operation.
func NewOperation(opType OperationType) Operation {
	return Operation{Type: opType}
}

// NewOperationWithValues creates an operation carrying the given values.
func NewOperationWithValues(opType OperationType, values ...string) Operation {
	return Operation{Type: opType, Values: values}
}

// Definition describes one account operation as exposed on the command
// line: the subcommand name, the wire operation type and operand shape,
// the attribute name used when rendering response values, and whether
// the operation mutates server state.
type Definition struct {
	Name      string
	Type      OperationType
	Operand   OperandKind
	Attribute string
	Mutates   bool
	Summary   string
}

// GetAll is the pseudo-operation that requests every state property by
// sending an empty operation list. It has no wire operation type.
var GetAll = Definition{
	Name:      "get-all",
	Type:      -1,
	Operand:   OperandNone,
	Attribute: "",
	Mutates:   false,
	Summary:   "Retrieve all password policy state properties for each target user",
}

// definitions is the operation catalog, in the order subcommands are
// presented. get-all is handled separately because it sends no
// operation elements.
var definitions = []Definition{
	{"get-password-policy-dn", OpTypeGetPasswordPolicyDN, OperandNone, "password-policy-dn", false,
		"Retrieve the DN of the password policy governing each target user"},
	{"get-account-is-usable", OpTypeGetAccountIsUsable, OperandNone, "account-is-usable", false,
		"Determine whether each target account is usable"},
	{"get-account-usability-notices", OpTypeGetAccountUsabilityNotices, OperandNone, "account-usability-notices", false,
		"Retrieve notices about the usability of each target account"},
	{"get-account-usability-warnings", OpTypeGetAccountUsabilityWarnings, OperandNone, "account-usability-warnings", false,
		"Retrieve warnings about conditions that may soon affect the usability of each target account"},
	{"get-account-usability-errors", OpTypeGetAccountUsabilityErrors, OperandNone, "account-usability-errors", false,
		"Retrieve errors about conditions currently affecting the usability of each target account"},
	{"get-account-is-disabled", OpTypeGetAccountIsDisabled, OperandNone, "account-is-disabled", false,
		"Determine whether each target account is administratively disabled"},
	{"set-account-is-disabled", OpTypeSetAccountIsDisabled, OperandBoolean, "account-is-disabled", true,
		"Specify whether each target account is administratively disabled"},
	{"clear-account-is-disabled", OpTypeClearAccountIsDisabled, OperandNone, "account-is-disabled", true,
		"Clear the disabled state for each target account"},
	{"get-account-activation-time", OpTypeGetAccountActivationTime, OperandNone, "account-activation-time", false,
		"Retrieve the activation time for each target account"},
	{"set-account-activation-time", OpTypeSetAccountActivationTime, OperandTimestamp, "account-activation-time", true,
		"Set the activation time for each target account"},
	{"clear-account-activation-time", OpTypeClearAccountActivationTime, OperandNone, "account-activation-time", true,
		"Clear the activation time for each target account"},
	{"get-seconds-until-account-activation", OpTypeGetSecondsUntilAccountActivation, OperandNone, "seconds-until-account-activation", false,
		"Retrieve the length of time until each target account becomes active"},
	{"get-account-is-not-yet-active", OpTypeGetAccountIsNotYetActive, OperandNone, "account-is-not-yet-active", false,
		"Determine whether each target account has an activation time in the future"},
	{"get-account-expiration-time", OpTypeGetAccountExpirationTime, OperandNone, "account-expiration-time", false,
		"Retrieve the expiration time for each target account"},
	{"set-account-expiration-time", OpTypeSetAccountExpirationTime, OperandTimestamp, "account-expiration-time", true,
		"Set the expiration time for each target account"},
	{"clear-account-expiration-time", OpTypeClearAccountExpirationTime, OperandNone, "account-expiration-time", true,
		"Clear the expiration time for each target account"},
	{"get-seconds-until-account-expiration", OpTypeGetSecondsUntilAccountExpiration, OperandNone, "seconds-until-account-expiration", false,
		"Retrieve the length of time until each target account expires"},
	{"get-account-is-expired", OpTypeGetAccountIsExpired, OperandNone, "account-is-expired", false,
		"Determine whether each target account has passed its expiration time"},
	{"get-password-changed-time", OpTypeGetPasswordChangedTime, OperandNone, "password-changed-time", false,
		"Retrieve the time each target user's password was last changed"},
	{"set-password-changed-time", OpTypeSetPasswordChangedTime, OperandTimestamp, "password-changed-time", true,
		"Set the time each target user's password was last changed"},
	{"clear-password-changed-time", OpTypeClearPasswordChangedTime, OperandNone, "password-changed-time", true,
		"Clear the password changed time for each target user"},
	{"get-password-expiration-time", OpTypeGetPasswordExpirationTime, OperandNone, "password-expiration-time", false,
		"Retrieve the password expiration time for each target user"},
	{"get-seconds-until-password-expiration", OpTypeGetSecondsUntilPasswordExpiration, OperandNone, "seconds-until-password-expiration", false,
		"Retrieve the length of time until each target user's password expires"},
	{"get-password-is-expired", OpTypeGetPasswordIsExpired, OperandNone, "password-is-expired", false,
		"Determine whether each target user's password is expired"},
	{"get-password-expiration-warned-time", OpTypeGetPasswordExpirationWarnedTime, OperandNone, "password-expiration-warned-time", false,
		"Retrieve the time each target user was first warned about an upcoming password expiration"},
	{"set-password-expiration-warned-time", OpTypeSetPasswordExpirationWarnedTime, OperandTimestamp, "password-expiration-warned-time", true,
		"Set the password expiration warned time for each target user"},
	{"clear-password-expiration-warned-time", OpTypeClearPasswordExpirationWarnedTime, OperandNone, "password-expiration-warned-time", true,
		"Clear the password expiration warned time for each target user"},
	{"get-seconds-until-password-expiration-warning", OpTypeGetSecondsUntilPasswordExpirationWarning, OperandNone, "seconds-until-password-expiration-warning", false,
		"Retrieve the length of time until each target user is warned about an upcoming password expiration"},
	{"get-account-is-failure-locked", OpTypeGetAccountIsFailureLocked, OperandNone, "account-is-failure-locked", false,
		"Determine whether each target account is locked for too many failed authentication attempts"},
	{"set-account-is-failure-locked", OpTypeSetAccountIsFailureLocked, OperandBoolean, "account-is-failure-locked", true,
		"Specify whether each target account is locked for too many failed authentication attempts"},
	{"get-failure-lockout-time", OpTypeGetFailureLockoutTime, OperandNone, "failure-lockout-time", false,
		"Retrieve the time each target account was failure-locked"},
	{"get-auth-failure-times", OpTypeGetAuthFailureTimes, OperandNone, "auth-failure-times", false,
		"Retrieve the authentication failure times for each target user"},
	{"add-auth-failure-time", OpTypeAddAuthFailureTime, OperandTimestampList, "auth-failure-times", true,
		"Add values to the set of authentication failure times for each target user"},
	{"set-auth-failure-times", OpTypeSetAuthFailureTimes, OperandTimestampList, "auth-failure-times", true,
		"Replace the set of authentication failure times for each target user"},
	{"clear-auth-failure-times", OpTypeClearAuthFailureTimes, OperandNone, "auth-failure-times", true,
		"Clear the authentication failure times for each target user"},
	{"get-seconds-until-auth-failure-unlock", OpTypeGetSecondsUntilAuthFailureUnlock, OperandNone, "seconds-until-auth-failure-unlock", false,
		"Retrieve the length of time until each failure-locked target account unlocks"},
	{"get-remaining-auth-failure-count", OpTypeGetRemainingAuthFailureCount, OperandNone, "remaining-auth-failure-count", false,
		"Retrieve the number of remaining failed authentication attempts before lockout"},
	{"get-account-is-idle-locked", OpTypeGetAccountIsIdleLocked, OperandNone, "account-is-idle-locked", false,
		"Determine whether each target account is locked for remaining idle too long"},
	{"get-idle-lockout-time", OpTypeGetIdleLockoutTime, OperandNone, "idle-lockout-time", false,
		"Retrieve the time each target account was idle-locked"},
	{"get-last-login-time", OpTypeGetLastLoginTime, OperandNone, "last-login-time", false,
		"Retrieve the last login time for each target user"},
	{"set-last-login-time", OpTypeSetLastLoginTime, OperandTimestamp, "last-login-time", true,
		"Set the last login time for each target user"},
	{"clear-last-login-time", OpTypeClearLastLoginTime, OperandNone, "last-login-time", true,
		"Clear the last login time for each target user"},
	{"get-last-login-ip-address", OpTypeGetLastLoginIPAddress, OperandNone, "last-login-ip-address", false,
		"Retrieve the IP address from which each target user last authenticated"},
	{"set-last-login-ip-address", OpTypeSetLastLoginIPAddress, OperandString, "last-login-ip-address", true,
		"Set the IP address from which each target user last authenticated"},
	{"clear-last-login-ip-address", OpTypeClearLastLoginIPAddress, OperandNone, "last-login-ip-address", true,
		"Clear the last login IP address for each target user"},
	{"get-seconds-until-idle-lockout", OpTypeGetSecondsUntilIdleLockout, OperandNone, "seconds-until-idle-lockout", false,
		"Retrieve the length of time until each target account is idle-locked"},
	{"get-password-is-reset", OpTypeGetPasswordIsReset, OperandNone, "password-is-reset", false,
		"Determine whether each target user must change their password after an administrative reset"},
	{"set-password-is-reset", OpTypeSetPasswordIsReset, OperandBoolean, "password-is-reset", true,
		"Specify whether each target user must change their password after an administrative reset"},
	{"clear-password-is-reset", OpTypeClearPasswordIsReset, OperandNone, "password-is-reset", true,
		"Clear the password reset state for each target user"},
	{"get-seconds-until-password-reset-lockout", OpTypeGetSecondsUntilPasswordResetLockout, OperandNone, "seconds-until-password-reset-lockout", false,
		"Retrieve the length of time until each target user is locked out for an unchanged reset password"},
	{"get-account-is-password-reset-locked", OpTypeGetAccountIsPasswordResetLocked, OperandNone, "account-is-password-reset-locked", false,
		"Determine whether each target account is locked for an unchanged reset password"},
	{"get-password-reset-lockout-time", OpTypeGetPasswordResetLockoutTime, OperandNone, "password-reset-lockout-time", false,
		"Retrieve the time each target account was reset-locked"},
	{"get-grace-login-use-times", OpTypeGetGraceLoginUseTimes, OperandNone, "grace-login-use-times", false,
		"Retrieve the grace login use times for each target user"},
	{"add-grace-login-use-time", OpTypeAddGraceLoginUseTime, OperandTimestampList, "grace-login-use-times", true,
		"Add values to the set of grace login use times for each target user"},
	{"set-grace-login-use-times", OpTypeSetGraceLoginUseTimes, OperandTimestampList, "grace-login-use-times", true,
		"Replace the set of grace login use times for each target user"},
	{"clear-grace-login-use-times", OpTypeClearGraceLoginUseTimes, OperandNone, "grace-login-use-times", true,
		"Clear the grace login use times for each target user"},
	{"get-remaining-grace-login-count", OpTypeGetRemainingGraceLoginCount, OperandNone, "remaining-grace-login-count", false,
		"Retrieve the number of remaining grace logins for each target user"},
	{"get-password-changed-by-required-time", OpTypeGetPasswordChangedByRequiredTime, OperandNone, "password-changed-by-required-time", false,
		"Retrieve the last required password change time with which each target user has complied"},
	{"set-password-changed-by-required-time", OpTypeSetPasswordChangedByRequiredTime, OperandTimestamp, "password-changed-by-required-time", true,
		"Set the last required password change time with which each target user has complied"},
	{"clear-password-changed-by-required-time", OpTypeClearPasswordChangedByRequiredTime, OperandNone, "password-changed-by-required-time", true,
		"Clear the required password change compliance time for each target user"},
	{"get-seconds-until-required-password-change-time", OpTypeGetSecondsUntilRequiredChangeTime, OperandNone, "seconds-until-required-password-change-time", false,
		"Retrieve the length of time until each target user must comply with a required password change"},
	{"get-password-history-count", OpTypeGetPasswordHistoryCount, OperandNone, "password-history-count", false,
		"Retrieve the number of passwords held in the password history for each target user"},
	{"clear-password-history", OpTypeClearPasswordHistory, OperandNone, "password-history", true,
		"Clear the password history for each target user"},
	{"get-has-retired-password", OpTypeGetHasRetiredPassword, OperandNone, "has-retired-password", false,
		"Determine whether each target user has a retired former password"},
	{"get-password-retired-time", OpTypeGetPasswordRetiredTime, OperandNone, "password-retired-time", false,
		"Retrieve the time each target user's former password was retired"},
	{"get-retired-password-expiration-time", OpTypeGetRetiredPasswordExpirationTime, OperandNone, "retired-password-expiration-time", false,
		"Retrieve the time each target user's retired password stops being valid"},
	{"clear-retired-password", OpTypeClearRetiredPassword, OperandNone, "retired-password", true,
		"Purge the retired former password for each target user"},
	{"get-available-sasl-mechanisms", OpTypeGetAvailableSASLMechanisms, OperandNone, "available-sasl-mechanisms", false,
		"Retrieve the SASL mechanisms available to each target user"},
	{"get-available-otp-delivery-mechanisms", OpTypeGetAvailableOTPDeliveryMechanisms, OperandNone, "available-otp-delivery-mechanisms", false,
		"Retrieve the one-time-password delivery mechanisms available to each target user"},
	{"get-has-totp-shared-secret", OpTypeGetHasTOTPSharedSecret, OperandNone, "has-totp-shared-secret", false,
		"Determine whether each target user has one or more TOTP shared secrets"},
	{"add-totp-shared-secret", OpTypeAddTOTPSharedSecret, OperandStringList, "totp-shared-secrets", true,
		"Add values to the TOTP shared secrets registered for each target user"},
	{"remove-totp-shared-secret", OpTypeRemoveTOTPSharedSecret, OperandStringList, "totp-shared-secrets", true,
		"Remove values from the TOTP shared secrets registered for each target user"},
	{"set-totp-shared-secrets", OpTypeSetTOTPSharedSecrets, OperandStringList, "totp-shared-secrets", true,
		"Replace the TOTP shared secrets registered for each target user"},
	{"clear-totp-shared-secrets", OpTypeClearTOTPSharedSecrets, OperandNone, "totp-shared-secrets", true,
		"Clear the TOTP shared secrets registered for each target user"},
	{"get-has-registered-yubikey-public-id", OpTypeGetHasRegisteredYubiKeyID, OperandNone, "has-registered-yubikey-public-id", false,
		"Determine whether each target user has one or more registered YubiKey OTP device public IDs"},
	{"get-registered-yubikey-public-ids", OpTypeGetRegisteredYubiKeyIDs, OperandNone, "registered-yubikey-public-ids", false,
		"Retrieve the YubiKey OTP device public IDs registered for each target user"},
	{"add-registered-yubikey-public-id", OpTypeAddRegisteredYubiKeyID, OperandStringList, "registered-yubikey-public-ids", true,
		"Add values to the YubiKey OTP device public IDs registered for each target user"},
	{"remove-registered-yubikey-public-id", OpTypeRemoveRegisteredYubiKeyID, OperandStringList, "registered-yubikey-public-ids", true,
		"Remove values from the YubiKey OTP device public IDs registered for each target user"},
	{"set-registered-yubikey-public-ids", OpTypeSetRegisteredYubiKeyIDs, OperandStringList, "registered-yubikey-public-ids", true,
		"Replace the YubiKey OTP device public IDs registered for each target user"},
	{"clear-registered-yubikey-public-ids", OpTypeClearRegisteredYubiKeyIDs, OperandNone, "registered-yubikey-public-ids", true,
		"Clear the YubiKey OTP device public IDs registered for each target user"},
}

// Definitions returns the full operation catalog, excluding get-all.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionByName looks up an operation definition by subcommand name.
func DefinitionByName(name string) (Definition, error) {
	if name == GetAll.Name {
		return GetAll, nil
	}
	for _, d := range definitions {
		if d.Name == name {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("unknown account operation: %s", name)
}

// AttributeName returns the record attribute used to render values
// returned for the given operation type, or "state-value" when the
// type is not in the catalog.
func AttributeName(opType OperationType) string {
	for _, d := range definitions {
		if d.Type == opType {
			return d.Attribute
		}
	}
	return "state-value"
}
