package checkout

import (
	"strings"

	"github.com/stelinglobal/storefront/internal/domain/cart"
	"github.com/stelinglobal/storefront/internal/domain/order"
)

// DefaultCountry is assumed when the buyer leaves the country blank.
const DefaultCountry = "India"

// PaymentMethod is the buyer's selected way to pay.
type PaymentMethod string

const (
	MethodRazorpay PaymentMethod = "razorpay"
	MethodUPI      PaymentMethod = "upi"
	MethodCard     PaymentMethod = "card"
)

// Label is the human-readable method name used in handoff messages.
func (m PaymentMethod) Label() string {
	if m == MethodUPI {
		return "UPI"
	}
	return "Card / Bank Transfer"
}

// Validation messages shown to the buyer.
const (
	MsgContactRequired = "Name, Email, and Phone are required"
	MsgCompanyRequired = "Company name is required"
	MsgAddressRequired = "Complete shipping address is required"
	MsgCartEmpty       = "Your cart is empty"
)

// ValidationError reports the first failed checkout check.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Form is the buyer's checkout submission.
type Form struct {
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	Company       string        `json:"company"`
	GST           string        `json:"gst"`
	Address       string        `json:"address"`
	City          string        `json:"city"`
	State         string        `json:"state"`
	Pincode       string        `json:"pincode"`
	Country       string        `json:"country"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

// Customer returns the buyer snapshot recorded with an order.
func (f Form) Customer() order.Customer {
	country := f.Country
	if strings.TrimSpace(country) == "" {
		country = DefaultCountry
	}
	return order.Customer{
		Name:    f.Name,
		Email:   f.Email,
		Phone:   f.Phone,
		Company: f.Company,
		GST:     f.GST,
		Address: f.Address,
		City:    f.City,
		State:   f.State,
		Pincode: f.Pincode,
		Country: country,
	}
}

// Validate runs the checkout checks in order and returns the first failure
// as a *ValidationError. Only presence is checked; formats are not.
func Validate(f Form, state cart.State) error {
	switch {
	case blank(f.Name, f.Email, f.Phone):
		return &ValidationError{Message: MsgContactRequired}
	case blank(f.Company):
		return &ValidationError{Message: MsgCompanyRequired}
	case blank(f.Address, f.City, f.State, f.Pincode):
		return &ValidationError{Message: MsgAddressRequired}
	case state.IsEmpty():
		return &ValidationError{Message: MsgCartEmpty}
	}
	return nil
}

func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}
