// internal/browser/session/scripts.go
package session

import (
	"encoding/json"
	"fmt"
)

// jsHelpers defines locate, isVisible and snapshot inside every query script.
// The locator is "#id" when the id is unique in the document, otherwise a
// structural tag:nth-of-type(n) path rooted at html.
const jsHelpers = `
const locate = (el) => {
	if (el.id) {
		const byID = '#' + CSS.escape(el.id);
		if (document.querySelectorAll(byID).length === 1) return byID;
	}
	const parts = [];
	let node = el;
	while (node && node.nodeType === 1 && node !== document.documentElement) {
		const tag = node.tagName.toLowerCase();
		let index = 1;
		let sib = node;
		while ((sib = sib.previousElementSibling)) {
			if (sib.tagName === node.tagName) index++;
		}
		parts.unshift(tag + ':nth-of-type(' + index + ')');
		node = node.parentElement;
	}
	parts.unshift('html');
	return parts.join(' > ');
};
const isVisible = (el) => {
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	return el.getClientRects().length > 0;
};
const textOf = (el) => ((el.innerText || el.value || '') + '').replace(/\s+/g, ' ').trim().slice(0, 200);
const snapshot = (el) => {
	const attributes = {};
	for (const a of el.attributes) attributes[a.name] = a.value;
	const tag = el.tagName.toLowerCase();
	return {
		locator: locate(el),
		tag: tag,
		attributes: attributes,
		text: textOf(el),
		url: tag === 'a' ? (el.href || '') : '',
		enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
		visible: isVisible(el),
		options: tag === 'select' ? Array.from(el.options).filter(o => !o.disabled).map(o => o.value) : undefined,
	};
};
`

func jsQuery(scope, selector string) string {
	return fmt.Sprintf(`(function(scopeSel, sel) {
%s
	const root = scopeSel ? document.querySelector(scopeSel) : document;
	if (!root) return { found: false, items: [] };
	const items = Array.from(root.querySelectorAll(sel)).filter(isVisible).map(snapshot);
	return { found: true, items: items };
})(%s, %s)`, jsHelpers, jsonEncode(scope), jsonEncode(selector))
}

func jsFindByText(selector, text string) string {
	return fmt.Sprintf(`(function(sel, want) {
%s
	for (const el of document.querySelectorAll(sel)) {
		if (!isVisible(el)) continue;
		const label = (el.getAttribute('aria-label') || '').trim();
		if (textOf(el) === want || label === want) return { found: true, item: snapshot(el) };
	}
	return { found: false };
})(%s, %s)`, jsHelpers, jsonEncode(selector), jsonEncode(text))
}

// jsFill sets the value through the native setter so framework-controlled
// inputs observe the change, then fires input and change.
func jsFill(locator, value string) string {
	return fmt.Sprintf(`(function(sel, value) {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	if (el.disabled || el.readOnly) return 'disabled';
	el.focus();
	const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return 'ok';
})(%s, %s)`, jsonEncode(locator), jsonEncode(value))
}

func jsCheck(locator string) string {
	return fmt.Sprintf(`(function(sel) {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	if (el.disabled) return 'disabled';
	if (!el.checked) el.click();
	return 'ok';
})(%s)`, jsonEncode(locator))
}

func jsSelect(locator, value string) string {
	return fmt.Sprintf(`(function(sel, value) {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	if (el.disabled) return 'disabled';
	el.value = value;
	if (el.value !== value) return 'no-option';
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return 'ok';
})(%s, %s)`, jsonEncode(locator), jsonEncode(value))
}

func jsPrepareClick(locator string) string {
	return fmt.Sprintf(`(function(sel) {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	el.scrollIntoView({ block: 'center', inline: 'center' });
	return 'ok';
})(%s)`, jsonEncode(locator))
}

// jsLoadScript appends a script tag and resolves once it has loaded.
func jsLoadScript(src string) string {
	return fmt.Sprintf(`new Promise((resolve, reject) => {
	const s = document.createElement('script');
	s.src = %s;
	s.onload = () => resolve(true);
	s.onerror = () => reject(new Error('failed to load script ' + s.src));
	(document.head || document.documentElement).appendChild(s);
})`, jsonEncode(src))
}

// jsonEncode safely encodes a value as a JS literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
