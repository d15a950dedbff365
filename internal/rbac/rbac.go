package rbac

// Role constants
const (
	RoleSME      = "sme"
	RoleCustomer = "customer"
	RoleLender   = "lender"
	RoleAdmin    = "admin"
)

var AllRoles = []string{RoleSME, RoleCustomer, RoleLender, RoleAdmin}

// Permission constants
const (
	PermCreateEscrow   = "create_escrow"
	PermReviewLoan     = "review_loan"
	PermViewAllLoans   = "view_all_loans"
	PermManageAnyAsset = "manage_any_asset"
)

// RolePermissions defines what each role can do. Escrow party operations
// (invite, deposit, milestones) are checked against the escrow row instead.
var RolePermissions = map[string][]string{
	RoleSME: {
		PermCreateEscrow,
	},
	RoleCustomer: {},
	RoleLender: {
		PermReviewLoan, PermViewAllLoans,
	},
	RoleAdmin: {
		PermReviewLoan, PermViewAllLoans, PermManageAnyAsset,
	},
}

func IsValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
