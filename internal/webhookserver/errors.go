package webhookserver

const (
	errMissingParams     = "Missing deployment_id or secret"
	errInvalidDeployment = "Invalid deployment"
	errUnknownPlatform   = "Unknown platform"
	errDependency        = "dependency error"
)
