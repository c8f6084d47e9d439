package bridge

import (
	"strings"

	"go.tunwire.dev/bridge/pkg/auth"
)

// handleAuthCommand handles an AUTH command. line is the command with
// the "AUTH " prefix still attached, e.g. "AUTH s alpha" or
// "AUTH abc123tok".
func (c *conn) handleAuthCommand(line string) {
	if !c.setRole(roleAgentControl) {
		return
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		c.log.Debugw("malformed AUTH command, closing", "remoteIP", c.remoteIP)
		c.writeLine(replyAuthFailInvalidFormat)
		c.close()
		return
	}
	credential := fields[1]
	var subdomain string
	if len(fields) == 3 {
		subdomain = fields[2]
	}

	if c.b.ips.isLockedOut(c.remoteIP) {
		c.log.Debugw("AUTH from locked-out IP, closing", "remoteIP", c.remoteIP)
		_ = c.writeLine(replyAuthFailLocked)
		c.close()
		return
	}

	if c.b.cfg.Auth.Enabled {
		c.handleTokenAuth(credential, subdomain)
		return
	}
	c.handleSharedSecretAuth(credential, subdomain)
}

// handleSharedSecretAuth handles shared-secret mode auth:
// the credential must match the configured secret exactly (constant-time),
// and subdomain must be present and not already claimed.
func (c *conn) handleSharedSecretAuth(credential, subdomain string) {
	if subdomain == "" || !auth.SecureCompare(credential, c.b.cfg.Secret) {
		c.failAuth(replyAuthFail)
		return
	}

	if !c.b.registry.register(subdomain, c) {
		c.log.Debugw("AUTH subdomain already in use, closing", "subdomain", subdomain)
		_ = c.writeLine(replyAuthFailInUse)
		c.close()
		return
	}

	c.agentID = subdomain
	c.b.ips.recordAuthSuccess(c.remoteIP)
	if err := c.writeLine("AUTH_OK " + subdomain + "." + assignedDomainSuffix); err != nil {
		c.close()
	}
}

// handleTokenAuth handles token mode auth: the credential
// is tried first as a bearer token, then as a claim code to redeem.
func (c *conn) handleTokenAuth(credential, subdomain string) {
	if tok, ok := c.b.tokens.ValidateToken(credential); ok {
		if !c.b.registry.register(tok.AgentID, c) {
			c.failAuthInvalid(replyAuthFailAgentAlreadyConnected)
			return
		}
		c.agentID = tok.AgentID
		c.b.ips.recordAuthSuccess(c.remoteIP)
		if err := c.writeLine("AUTH_OK " + tok.AgentID + "." + tok.Namespace); err != nil {
			c.close()
		}
		return
	}

	newTok, ok := c.b.tokens.RedeemClaimCode(credential)
	if !ok {
		c.failAuth(replyAuthFailInvalidCredentials)
		return
	}
	if !c.b.registry.register(newTok.AgentID, c) {
		c.failAuthInvalid(replyAuthFailAgentAlreadyConnected)
		return
	}
	c.agentID = newTok.AgentID
	c.b.ips.recordAuthSuccess(c.remoteIP)
	if err := c.writeLine("AUTH_OK " + newTok.AgentID + "." + newTok.Namespace + " " + newTok.Value); err != nil {
		c.close()
	}
}

// failAuth records an auth failure against the remote IP (possibly
// arming a lockout for subsequent attempts), replies reply, and closes —
// the generic path for a wrong shared secret or an unrecognised
// token/claim code. The attempt that arms the lockout still gets reply;
// only a later attempt against an already-locked IP sees
// replyAuthFailLocked, via the isLockedOut check in handleAuthCommand.
func (c *conn) failAuth(reply string) {
	c.b.ips.recordAuthFailure(c.remoteIP)
	c.b.metrics.Counter("bridge_auth_failures_total").Inc()
	_ = c.writeLine(reply)
	c.close()
}

// failAuthInvalid replies reply and closes without touching the
// auth-failure counter: the credential itself was valid, the agent_id it
// names is just already connected.
func (c *conn) failAuthInvalid(reply string) {
	_ = c.writeLine(reply)
	c.close()
}

// assignedDomainSuffix is the fixed suffix the Bridge appends to a
// shared-secret-authenticated agent's subdomain to form its
// AUTH_OK-reported domain. It does not depend on the configured domain.
const assignedDomainSuffix = "bridge"
