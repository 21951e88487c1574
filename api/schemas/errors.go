package schemas

import "errors"

// ErrPageUnreachable marks a fatal failure to load, or return to, a target page.
var ErrPageUnreachable = errors.New("page unreachable")

// ErrElementNotFound marks a locator that no longer resolves to an element,
// typically because the page re-rendered.
var ErrElementNotFound = errors.New("element not found")
