package enum

// ToastCategory 表示提示訊息的類別
type ToastCategory string

const (
	ToastCategoryInfo    ToastCategory = "info"
	ToastCategorySuccess ToastCategory = "success"
	ToastCategoryDanger  ToastCategory = "danger"
	ToastCategoryWarning ToastCategory = "warning"
)

var toastStyles = map[ToastCategory]string{
	ToastCategoryInfo:    "bg-info text-dark",
	ToastCategorySuccess: "bg-success text-white",
	ToastCategoryDanger:  "bg-danger text-white",
	ToastCategoryWarning: "bg-warning text-dark",
}

// defaultToastStyle is used for categories outside the known set.
const defaultToastStyle = "bg-primary text-white"

// Normalize maps the empty category to info.
func (c ToastCategory) Normalize() ToastCategory {
	if c == "" {
		return ToastCategoryInfo
	}
	return c
}

// Style returns the CSS classes for the category.
func (c ToastCategory) Style() string {
	if style, ok := toastStyles[c.Normalize()]; ok {
		return style
	}
	return defaultToastStyle
}
