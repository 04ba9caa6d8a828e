package ldap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/isometry/accountctl/internal/pwpstate"
)

// DefaultPageSize is the page size used for paged searches when the request
// does not specify one.
const DefaultPageSize = 100

// Client provides the directory operations the pipeline needs: plain and
// paged searches plus the password-policy-state extended operation. All
// operations run on pooled connections; a failure that indicates a dead
// connection is retried exactly once on a fresh one.
type Client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	logger *zap.Logger
}

// NewClient creates a new LDAP client with connection pooling.
func NewClient(config *ConnectionConfig, logger *zap.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := NewConnectionPool(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	logger.Debug("LDAP client created",
		zap.String("domain", config.Domain),
		zap.Int("ldap_urls", len(config.LDAPURLs)),
		zap.String("auth_method", config.GetAuthMethod().String()),
		zap.Int("max_connections", config.MaxConnections))

	return &Client{
		pool:   pool,
		config: config,
		logger: logger,
	}, nil
}

// Close closes the client and all its connections.
func (c *Client) Close() error {
	return c.pool.Close()
}

// Stats returns pool statistics.
func (c *Client) Stats() PoolStats {
	return c.pool.Stats()
}

// Ping tests connectivity to the directory server.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)

	_, err = conn.Conn().Search(searchReq)
	return WrapError("ping", err)
}

// withFreshRetry runs fn on a pooled connection. If fn fails because the
// connection went stale, the connection is discarded and fn runs once more
// on a fresh connection; its outcome is then final either way.
func (c *Client) withFreshRetry(ctx context.Context, operation string, fn func(conn *PooledConnection) error) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	err = fn(conn)
	if err == nil || !IsStaleConnection(err) {
		conn.Close()
		return err
	}

	conn.Discard()
	c.logger.Debug("retrying on fresh connection",
		zap.String("operation", operation),
		zap.Error(err))

	fresh, getErr := c.pool.Get(ctx)
	if getErr != nil {
		return err
	}
	defer fresh.Close()

	return fn(fresh)
}

// Search performs a single-shot LDAP search.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()
	var result *ldap.SearchResult

	err := c.withFreshRetry(ctx, "search", func(conn *PooledConnection) error {
		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			req.SizeLimit,
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			nil,
		)

		var searchErr error
		result, searchErr = conn.Conn().Search(ldapReq)
		return searchErr
	})

	if err != nil {
		logLDAPError(c.logger, "search", err,
			zap.String("base_dn", req.BaseDN),
			zap.String("filter", req.Filter))
		return nil, WrapError("search", err)
	}

	c.logger.Debug("search completed",
		zap.String("base_dn", req.BaseDN),
		zap.String("filter", req.Filter),
		zap.Int("entries_found", len(result.Entries)),
		zap.Duration("duration", time.Since(start)))

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
	}, nil
}

// PageFunc receives one page of search entries. Returning an error stops
// the search.
type PageFunc func(entries []*ldap.Entry) error

// SearchPaged performs a paged search, streaming each page to fn. The
// context is checked between pages; on cancellation the server-side paging
// cookie is abandoned with a best-effort zero-size page before returning.
// Search failures that indicate a stale connection are retried once on a
// fresh connection by re-running the search from the current cookie.
func (c *Client) SearchPaged(ctx context.Context, req *SearchRequest, fn PageFunc) error {
	if req == nil {
		return fmt.Errorf("search request cannot be nil")
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { conn.Close() }()

	start := time.Now()
	pagingControl := ldap.NewControlPaging(uint32(pageSize))
	pageNum := 0
	totalEntries := 0
	retried := false

	for {
		if err := ctx.Err(); err != nil {
			c.abandonPaging(conn, req, pagingControl)
			c.logger.Debug("paged search cancelled",
				zap.String("filter", req.Filter),
				zap.Int("pages_completed", pageNum),
				zap.Int("entries_streamed", totalEntries))
			return err
		}

		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			0, // no size limit when paging
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			[]ldap.Control{pagingControl},
		)

		result, err := conn.Conn().Search(ldapReq)
		if err != nil {
			if IsStaleConnection(err) && !retried {
				retried = true
				conn.Discard()
				fresh, getErr := c.pool.Get(ctx)
				if getErr != nil {
					return WrapError("paged search", err)
				}
				conn = fresh
				// The old cookie belongs to the dead connection;
				// restart paging from scratch on the fresh one.
				pagingControl = ldap.NewControlPaging(uint32(pageSize))
				c.logger.Debug("paged search restarting on fresh connection",
					zap.String("filter", req.Filter),
					zap.Error(err))
				continue
			}
			logLDAPError(c.logger, "paged search", err,
				zap.String("base_dn", req.BaseDN),
				zap.String("filter", req.Filter),
				zap.Int("page", pageNum+1))
			return WrapError("paged search", err)
		}

		pageNum++
		totalEntries += len(result.Entries)

		if len(result.Entries) > 0 {
			if err := fn(result.Entries); err != nil {
				c.abandonPaging(conn, req, pagingControl)
				return err
			}
		}

		pagingResult := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
		responseControl, ok := pagingResult.(*ldap.ControlPaging)
		if !ok || len(responseControl.Cookie) == 0 {
			break
		}
		pagingControl.SetCookie(responseControl.Cookie)
	}

	c.logger.Debug("paged search completed",
		zap.String("base_dn", req.BaseDN),
		zap.String("filter", req.Filter),
		zap.Int("pages", pageNum),
		zap.Int("entries", totalEntries),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// abandonPaging tells the server to discard its paging state by sending a
// zero-size page with the current cookie. Best effort.
func (c *Client) abandonPaging(conn *PooledConnection, req *SearchRequest, paging *ldap.ControlPaging) {
	if len(paging.Cookie) == 0 {
		return
	}

	paging.PagingSize = 0
	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		0, 1, false,
		req.Filter,
		nil,
		[]ldap.Control{paging},
	)
	if _, err := conn.Conn().Search(ldapReq); err != nil {
		c.logger.Debug("failed to abandon paging cookie", zap.Error(err))
	}
}

// PasswordPolicyState invokes the password-policy-state extended operation
// against targetDN. An empty operation list requests every state field.
func (c *Client) PasswordPolicyState(ctx context.Context, targetDN string, ops []pwpstate.Operation) (*pwpstate.StateResult, error) {
	start := time.Now()
	var result *pwpstate.StateResult

	err := c.withFreshRetry(ctx, "password policy state", func(conn *PooledConnection) error {
		req := ldap.NewExtendedRequest(pwpstate.RequestOID, pwpstate.EncodeRequestValue(targetDN, ops))

		resp, err := conn.Conn().Extended(req)
		if err != nil {
			return err
		}

		decoded, err := pwpstate.DecodeResponseValue(resp.Value)
		if err != nil {
			return fmt.Errorf("failed to decode response for %s: %w", targetDN, err)
		}
		result = decoded
		return nil
	})

	if err != nil {
		logLDAPError(c.logger, "password policy state", err, zap.String("dn", targetDN))
		return nil, WrapError("password policy state", err)
	}

	c.logger.Debug("password policy state completed",
		zap.String("dn", targetDN),
		zap.Int("operations", len(ops)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}
