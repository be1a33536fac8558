package rbac

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

const (
	PermPredict     = "predict:run"
	PermBatch       = "batch:run"
	PermHistoryView = "history:view"
	PermReportsView = "reports:view"
)

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	RoleViewer: {
		PermReportsView,
	},
	RoleOperator: {
		PermPredict,
		PermBatch,
		PermReportsView,
	},
	RoleAdmin: {
		"*", // everything
	},
}
