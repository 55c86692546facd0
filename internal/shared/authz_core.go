package shared

// Core platform resources and actions used in permission pairs.
const (
	ResourcePatients     = "patients"
	ResourceVisits       = "visits"
	ResourceOrders       = "orders"
	ResourcePharmacy     = "pharmacy"
	ResourceLab          = "lab"
	ResourceBilling      = "billing"
	ResourceScheduling   = "scheduling"
	ResourceRoles        = "roles"
	ResourcePermissions  = "permissions"
	ResourceCredentials  = "credentials"
	ResourceDataPolicies = "data_policies"
	ResourceAudit        = "audit"

	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
	ActionExport = "export"
)
