package transport

type LoginRequest struct {
	Mobile   string `form:"mobile"   json:"mobile"`
	Password string `form:"password" json:"password"`
	Next     string `form:"next"     json:"next"    query:"next"`
}

type RegisterRequest struct {
	Username string `form:"username"  json:"username"`
	Mobile   string `form:"mobile"    json:"mobile"`
	FullName string `form:"full_name" json:"full_name"`
	UserType string `form:"user_type" json:"user_type"`
	Password string `form:"password1" json:"password1"`
	Confirm  string `form:"password2" json:"password2"`
	IsStaff  bool   `form:"is_staff"  json:"is_staff"`
}

type ProfileRequest struct {
	Username string `form:"username"  json:"username"`
	Mobile   string `form:"mobile"    json:"mobile"`
	FullName string `form:"full_name" json:"full_name"`
	UserType string `form:"user_type" json:"user_type"`
}

type PasswordRequest struct {
	OldPassword string `form:"old_password"  json:"old_password"`
	NewPassword string `form:"new_password1" json:"new_password1"`
	Confirm     string `form:"new_password2" json:"new_password2"`
}

type UserUpdateRequest struct {
	Username    string `form:"username"     json:"username"`
	Mobile      string `form:"mobile"       json:"mobile"`
	FirstName   string `form:"first_name"   json:"first_name"`
	LastName    string `form:"last_name"    json:"last_name"`
	FullName    string `form:"full_name"    json:"full_name"`
	UserType    string `form:"user_type"    json:"user_type"`
	IsActive    bool   `form:"is_active"    json:"is_active"`
	IsStaff     bool   `form:"is_staff"     json:"is_staff"`
	IsSuperuser bool   `form:"is_superuser" json:"is_superuser"`
	NewPassword string `form:"new_password" json:"new_password"`
}

type PermissionsRequest struct {
	Groups      []uint `form:"groups"      json:"groups"`
	Permissions []uint `form:"permissions" json:"permissions"`
}

type GroupRequest struct {
	Name        string `form:"name"        json:"name"`
	Permissions []uint `form:"permissions" json:"permissions"`
}

// DrugRequest carries money and dates as text; handlers parse them.
type DrugRequest struct {
	DrugType   string `form:"drug_type"   json:"drug_type"`
	Name       string `form:"name"        json:"name"`
	DosageForm string `form:"dosage_form" json:"dosage_form"`
	Brand      string `form:"brand"       json:"brand"`
	Unit       string `form:"unit"        json:"unit"`
	Cost       string `form:"cost"        json:"cost"`
	Markup     int    `form:"markup"      json:"markup"`
	Price      string `form:"price"       json:"price"`
	Stock      int    `form:"stock"       json:"stock"`
	ExpDate    string `form:"exp_date"    json:"exp_date"`
}

type ReturnRequest struct {
	Quantity int    `form:"quantity" json:"quantity"`
	Reason   string `form:"reason"   json:"reason"`
}

type StockRequest struct {
	Quantity  int    `form:"quantity"  json:"quantity"`
	Operation string `form:"operation" json:"operation"`
}

type BuyerRequest struct {
	BuyerName  string `form:"buyer_name"  json:"buyer_name"`
	HospitalNo string `form:"hospital_no" json:"hospital_no"`
	NcapNo     string `form:"ncap_no"     json:"ncap_no"`
}

type FormItemRequest struct {
	DrugName   string `form:"drug_name"   json:"drug_name"`
	DrugBrand  string `form:"drug_brand"  json:"drug_brand"`
	DrugType   string `form:"drug_type"   json:"drug_type"`
	DosageForm string `form:"dosage_form" json:"dosage_form"`
	Unit       string `form:"unit"        json:"unit"`
	Quantity   int    `form:"quantity"    json:"quantity"`
	Price      string `form:"price"       json:"price"`
}

type SearchResult struct {
	ID    uint   `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
	Unit  string `json:"unit"`
}

type CategoryDrug struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
	Unit  string `json:"unit"`
}

type StockResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type CartUpdateResponse struct {
	Success  bool   `json:"success"`
	Action   string `json:"action"`
	Subtotal string `json:"subtotal"`
	Total    string `json:"total"`
}
