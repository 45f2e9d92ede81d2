package controller

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gofalre.io/storefront/models"
)

var _ View = (*Document)(nil)

// Document is a View over a parsed cart page. It is safe for concurrent use;
// toast auto-hide timers mutate it from their own goroutines.
type Document struct {
	mu     sync.Mutex
	root   *html.Node
	timers map[*html.Node]*time.Timer
}

// ParseDocument parses a cart page.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Document{
		root:   root,
		timers: make(map[*html.Node]*time.Timer),
	}, nil
}

// Render writes the current page.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Close stops pending toast timers.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n, t := range d.timers {
		t.Stop()
		delete(d.timers, n)
	}
}

func (d *Document) Quantity(productID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	input := findFirst(d.root, func(n *html.Node) bool {
		return hasClass(n, "quantity") && keyedBy(n, productID)
	})
	if input == nil {
		return "", false
	}
	return attr(input, "value"), true
}

// SetQuantity writes the value into every quantity field of the product,
// keeping the table and card layouts in step.
func (d *Document) SetQuantity(productID string, quantity int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, input := range findAll(d.root, func(n *html.Node) bool {
		return hasClass(n, "quantity") && keyedBy(n, productID)
	}) {
		setAttr(input, "value", strconv.Itoa(quantity))
	}
}

// TypeQuantity replaces the text of the product's first quantity field, as
// a user typing into it would.
func (d *Document) TypeQuantity(productID, value string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	input := findFirst(d.root, func(n *html.Node) bool {
		return hasClass(n, "quantity") && keyedBy(n, productID)
	})
	if input == nil {
		return false
	}
	setAttr(input, "value", value)
	return true
}

// SetBadge writes the item count into the badge of the cart icon link.
func (d *Document) SetBadge(quantity int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if badge := d.badge(); badge != nil {
		setText(badge, strconv.Itoa(quantity))
	}
}

// Badge returns the badge text.
func (d *Document) Badge() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if badge := d.badge(); badge != nil {
		return textContent(badge)
	}
	return ""
}

func (d *Document) badge() *html.Node {
	icon := findFirst(d.root, func(n *html.Node) bool { return hasClass(n, "bi-cart3") })
	if icon == nil {
		return nil
	}
	link := closest(icon, func(n *html.Node) bool { return n.DataAtom == atom.A })
	if link == nil {
		return nil
	}
	return findFirst(link, func(n *html.Node) bool { return hasClass(n, "badge") })
}

func (d *Document) LineElements(productID string) []LineElement {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []LineElement
	for _, n := range findAll(d.root, func(n *html.Node) bool { return keyedBy(n, productID) }) {
		totals := findAll(n, func(c *html.Node) bool { return c != n && hasClass(c, "item-total") })
		if len(totals) > 0 {
			out = append(out, &lineElement{doc: d, totals: totals})
		}
	}
	return out
}

// ItemTotals returns the text of every line total shown for the product.
func (d *Document) ItemTotals(productID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, n := range findAll(d.root, func(n *html.Node) bool { return keyedBy(n, productID) }) {
		for _, total := range findAll(n, func(c *html.Node) bool { return c != n && hasClass(c, "item-total") }) {
			out = append(out, textContent(total))
		}
	}
	return out
}

// HasLine reports whether any element is still keyed by the product.
func (d *Document) HasLine(productID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findFirst(d.root, func(n *html.Node) bool { return keyedBy(n, productID) }) != nil
}

func (d *Document) SetSubtotal(amount float64) {
	d.setTextByID("cart-subtotal", models.FormatAmount(amount))
}

func (d *Document) SetTotal(amount float64) {
	d.setTextByID("cart-total", models.FormatAmount(amount))
}

// Text returns the text content of the element with the given id.
func (d *Document) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := findByID(d.root, id); n != nil {
		return textContent(n)
	}
	return ""
}

func (d *Document) setTextByID(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := findByID(d.root, id); n != nil {
		setText(n, text)
	}
}

func (d *Document) RemoveLine(productID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range findAll(d.root, func(n *html.Node) bool { return keyedBy(n, productID) }) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func (d *Document) Shipping() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := findByID(d.root, "cart-shipping")
	if n == nil {
		return 0, fmt.Errorf("shipping element not found")
	}
	text := strings.TrimSpace(strings.Replace(textContent(n), "$", "", 1))
	shipping, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid shipping amount %q: %w", text, err)
	}
	return shipping, nil
}

func (d *Document) ToastContainer() (ToastContainer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := findByID(d.root, "toastContainer")
	if n == nil {
		return nil, false
	}
	return &toastContainer{doc: d, node: n}, true
}

// Toasts returns the messages of the notifications currently shown, oldest
// first.
func (d *Document) Toasts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	container := findByID(d.root, "toastContainer")
	if container == nil {
		return nil
	}
	var out []string
	for _, toast := range toasts(container) {
		if body := findFirst(toast, func(n *html.Node) bool { return hasClass(n, "toast-body") }); body != nil {
			out = append(out, textContent(body))
		}
	}
	return out
}

type lineElement struct {
	doc    *Document
	totals []*html.Node
}

func (l *lineElement) SetItemTotal(amount float64) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	for _, n := range l.totals {
		setText(n, models.FormatAmount(amount))
	}
}

type toastContainer struct {
	doc  *Document
	node *html.Node
}

func (t *toastContainer) Len() int {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return len(toasts(t.node))
}

func (t *toastContainer) RemoveOldest() {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if existing := toasts(t.node); len(existing) > 0 {
		t.doc.removeToast(existing[0])
	}
}

func (t *toastContainer) Append(toast *models.Toast) {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()

	el := newToastNode(toast)
	t.node.AppendChild(el)

	if toast.Autohide {
		t.doc.timers[el] = time.AfterFunc(toast.Delay, func() {
			t.doc.mu.Lock()
			defer t.doc.mu.Unlock()
			t.doc.removeToast(el)
		})
	}
}

// removeToast detaches a toast and stops its timer. Caller holds d.mu.
func (d *Document) removeToast(n *html.Node) {
	if timer, ok := d.timers[n]; ok {
		timer.Stop()
		delete(d.timers, n)
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func newToastNode(toast *models.Toast) *html.Node {
	el := element(atom.Div,
		html.Attribute{Key: "class", Val: "toast align-items-center " + toast.Category.Style() + " border-0 mb-2 slide-in"},
		html.Attribute{Key: "role", Val: "alert"},
		html.Attribute{Key: "aria-live", Val: "assertive"},
		html.Attribute{Key: "aria-atomic", Val: "true"},
		html.Attribute{Key: "data-bs-delay", Val: strconv.FormatInt(toast.Delay.Milliseconds(), 10)},
		html.Attribute{Key: "data-bs-autohide", Val: strconv.FormatBool(toast.Autohide)},
	)

	row := element(atom.Div, html.Attribute{Key: "class", Val: "d-flex"})
	body := element(atom.Div, html.Attribute{Key: "class", Val: "toast-body"})
	body.AppendChild(&html.Node{Type: html.TextNode, Data: toast.Message})
	closeButton := element(atom.Button,
		html.Attribute{Key: "type", Val: "button"},
		html.Attribute{Key: "class", Val: "btn-close btn-close-white me-2 m-auto"},
		html.Attribute{Key: "data-bs-dismiss", Val: "toast"},
		html.Attribute{Key: "aria-label", Val: "Close"},
	)

	row.AppendChild(body)
	row.AppendChild(closeButton)
	el.AppendChild(row)
	return el
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func toasts(container *html.Node) []*html.Node {
	return findAll(container, func(n *html.Node) bool { return n != container && hasClass(n, "toast") })
}

func findByID(root *html.Node, id string) *html.Node {
	return findFirst(root, func(n *html.Node) bool { return attr(n, "id") == id })
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
	}
	return nil
}

// keyedBy reports whether n carries data-id equal to a non-empty productID.
func keyedBy(n *html.Node, productID string) bool {
	if productID == "" {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "data-id" {
			return a.Val == productID
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
