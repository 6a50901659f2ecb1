package domain

// Roles carried in access tokens.
const (
	RoleSystemAdmin   = "system_admin"
	RolePharmacyAdmin = "pharmacy_admin"
	RoleCashier       = "cashier"
	RoleCustomer      = "customer"
)

type User struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Email      string `json:"email" db:"email"`
	Password   string `json:"password,omitempty" db:"password"`
	Role       string `json:"role" db:"role"`
	PharmacyID *int64 `json:"pharmacy_id,omitempty" db:"pharmacy_id"`
	CreatorID  *int64 `json:"creator_id,omitempty" db:"creator_id"`
	CreatedAt  string `json:"created_at,omitempty" db:"created_at"`
}
