package catalog

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ProductForm is the create/edit payload of a product and its variants
type ProductForm struct {
	Name          string                 `json:"name" validate:"required,min=1,max=100"`
	Description   string                 `json:"description" validate:"max=200"`
	Specification string                 `json:"specification"`
	Sku           string                 `json:"sku" validate:"omitempty,max=64,sku"`
	Barcode       string                 `json:"barcode" validate:"omitempty,max=64"`
	CategoryID    int64                  `json:"category_id,string" validate:"required"`
	Condition     string                 `json:"condition" validate:"required,oneof=new used refurbished"`
	Price         decimal.Decimal        `json:"price"`
	CostPrice     decimal.Decimal        `json:"cost_price"`
	StockQuantity int                    `json:"stock_quantity"`
	MinStockLevel int                    `json:"min_stock_level"`
	UseVariants   bool                   `json:"use_variants"`
	Images        []ImageForm            `json:"images" validate:"dive"`
	Metadata      map[string]interface{} `json:"metadata"`
	Variants      []VariantForm          `json:"variants"`
}

type ImageForm struct {
	URL       string `json:"url" validate:"omitempty,max=1024"`
	LegacyURL string `json:"legacy_url" validate:"omitempty,max=1024"`
	IsPrimary bool   `json:"is_primary"`
}

type VariantForm struct {
	ID            int64             `json:"id,string"`
	Name          string            `json:"name" validate:"required,max=100"`
	Sku           string            `json:"sku" validate:"omitempty,max=64,sku"`
	Price         decimal.Decimal   `json:"price"`
	CostPrice     decimal.Decimal   `json:"cost_price"`
	StockQuantity int               `json:"stock_quantity"`
	MinStockLevel int               `json:"min_stock_level"`
	Attributes    map[string]string `json:"attributes"`
}

// Errors maps a field path (e.g. "variants[0].name") to a message
type Errors map[string]string

func (e Errors) Add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// ValidationError carries field errors across the service boundary
type ValidationError struct {
	Fields Errors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuPattern.MatchString(fl.Field().String())
	})
	return v
}

// Normalize trims strings and applies defaults before validation
func (f *ProductForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Sku = strings.TrimSpace(f.Sku)
	f.Specification = strings.TrimSpace(f.Specification)
	if f.Condition == "" {
		f.Condition = domain.ConditionNew
	}
	for i := range f.Variants {
		f.Variants[i].Name = strings.TrimSpace(f.Variants[i].Name)
		f.Variants[i].Sku = strings.TrimSpace(f.Variants[i].Sku)
	}
	for i := range f.Images {
		f.Images[i].URL = strings.TrimSpace(f.Images[i].URL)
		f.Images[i].LegacyURL = strings.TrimSpace(f.Images[i].LegacyURL)
	}
}

// Validate checks the form and returns every problem found, an empty map means valid
func Validate(f *ProductForm) Errors {
	errs := Errors{}
	if f == nil {
		errs.Add("form", "is required")
		return errs
	}

	collect(errs, "", validate.Struct(f))

	if f.Specification != "" && !jsoniter.Valid([]byte(f.Specification)) {
		errs.Add("specification", "must be valid JSON")
	}

	for i, img := range f.Images {
		if img.URL == "" && img.LegacyURL == "" {
			errs.Add(fmt.Sprintf("images[%d]", i), "url is required")
		}
	}

	if f.UseVariants {
		if len(f.Variants) == 0 {
			errs.Add("variants", "at least one variant is required")
		}
		seen := map[string]int{}
		for i := range f.Variants {
			v := &f.Variants[i]
			prefix := fmt.Sprintf("variants[%d]", i)
			collect(errs, prefix, validate.Struct(v))
			checkMoney(errs, prefix+".price", v.Price)
			checkMoney(errs, prefix+".cost_price", v.CostPrice)
			checkCount(errs, prefix+".stock_quantity", v.StockQuantity)
			checkCount(errs, prefix+".min_stock_level", v.MinStockLevel)
			if v.Name != "" {
				key := strings.ToLower(v.Name)
				if j, dup := seen[key]; dup {
					errs.Add(prefix+".name", fmt.Sprintf("duplicates variants[%d]", j))
				}
				seen[key] = i
			}
		}
	} else {
		checkMoney(errs, "price", f.Price)
		checkMoney(errs, "cost_price", f.CostPrice)
		checkCount(errs, "stock_quantity", f.StockQuantity)
		checkCount(errs, "min_stock_level", f.MinStockLevel)
	}
	return errs
}

func checkMoney(errs Errors, field string, v decimal.Decimal) {
	if v.IsNegative() {
		errs.Add(field, "must be greater than or equal to 0")
	}
}

func checkCount(errs Errors, field string, v int) {
	if v < 0 {
		errs.Add(field, "must be greater than or equal to 0")
	}
}

func collect(errs Errors, prefix string, err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.Add(strings.TrimPrefix(prefix+".form", "."), err.Error())
		return
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if prefix != "" {
			field = prefix + "." + field
		}
		errs.Add(field, messageFor(fe))
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "sku":
		return "may only contain letters, digits, '.', '_' and '-'"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
