/*
Package security manages the client-side X.509 certificate pair used by a
certificate-authenticated session: each mount session gets its own cert/key
pair under a per-(hostname, sessionID) directory, loaded lazily at dial time
so a missing or expired certificate surfaces as a handshake error rather
than a startup crash.

# Certificate rotation

CertNeedsRotation flags a certificate within 30 days of expiry
(certRotationThreshold); the owning session is responsible for acting on
that signal (prompting for a fresh certificate, or failing the mount) since
this package only inspects certificates, it does not issue them.

# Layout

	~/.oneclient/certs/<hostname>-<sessionID>/
	  node.crt
	  node.key
	  ca.crt
*/
package security
