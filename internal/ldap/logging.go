package ldap

import (
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// logLDAPError logs an operation failure, attaching protocol-level detail
// when the underlying error carries it.
func logLDAPError(logger *zap.Logger, operation string, err error, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
		zap.String("category", string(GetErrorCategory(err))),
	}, extra...)

	if ldapErr, ok := err.(*ldap.Error); ok {
		fields = append(fields, zap.Uint16("ldap_result_code", ldapErr.ResultCode))
		if ldapErr.MatchedDN != "" {
			fields = append(fields, zap.String("ldap_matched_dn", ldapErr.MatchedDN))
		}
	}

	logger.Error("LDAP operation failed", fields...)
}
