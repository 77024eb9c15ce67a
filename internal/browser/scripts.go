package browser

// handleAttr tags measured elements so later scripts can find them again.
const handleAttr = "data-pagestitch-handle"

// layoutJS measures the page in one pass. It only reports elements that can
// matter to target selection: modals, positioned overlays, scrollers and
// content landmarks.
const layoutJS = `(attr) => {
	const modalSelectors = [
		"[aria-modal='true']", "[role='dialog']", ".modal", ".Modal",
		".dialog", ".Dialog", "[class*='modal']", "[class*='Modal']"
	];
	const landmarkSelectors = [
		"main", "article", "[role='main']", ".scaffold-layout__main",
		".scaffold-layout__content", ".scaffold-layout", ".application-outlet",
		".post", ".post-content", ".reader-content", ".main-content"
	];

	const canActuallyScroll = (el) => {
		if (!el || el.scrollHeight - el.clientHeight <= 80) return false;
		const prev = el.scrollTop;
		el.scrollTop = prev + 100;
		const moved = el.scrollTop !== prev;
		el.scrollTop = prev;
		return moved;
	};
	const zIndex = (style) => {
		const z = Number.parseInt(style.zIndex, 10);
		return Number.isNaN(z) ? 0 : z;
	};
	const matchesAny = (el, selectors) => selectors.some((s) => el.matches(s));

	document.querySelectorAll("[" + attr + "]").forEach((el) => el.removeAttribute(attr));

	const body = document.body;
	const root = document.documentElement;
	const scroller = document.scrollingElement || root;

	const handles = new Map();
	const elements = [];
	let next = 0;
	for (const el of document.querySelectorAll("body *")) {
		const style = window.getComputedStyle(el);
		const modal = matchesAny(el, modalSelectors);
		const landmark = matchesAny(el, landmarkSelectors);
		const positioned = ["fixed", "absolute", "sticky"].includes(style.position);
		const scrollable = ["auto", "scroll", "overlay"].includes(style.overflowY);
		if (!modal && !landmark && !positioned && !scrollable) continue;

		let parent = "";
		for (let p = el.parentElement; p; p = p.parentElement) {
			if (handles.has(p)) {
				parent = handles.get(p);
				break;
			}
		}
		const handle = String(next++);
		handles.set(el, handle);
		el.setAttribute(attr, handle);

		const rect = el.getBoundingClientRect();
		elements.push({
			handle,
			parent,
			rect: { left: rect.left, top: rect.top, width: rect.width, height: rect.height },
			clientWidth: el.clientWidth,
			clientHeight: el.clientHeight,
			scrollHeight: el.scrollHeight,
			position: style.position,
			overflowY: style.overflowY,
			visibility: style.visibility,
			display: style.display,
			zIndex: zIndex(style),
			modal,
			landmark,
			canScroll: scrollable && canActuallyScroll(el)
		});
	}

	return {
		viewport: { width: window.innerWidth, height: window.innerHeight },
		root: {
			canScroll: canActuallyScroll(scroller),
			widths: [
				root.clientWidth, body ? body.scrollWidth : 0, root.scrollWidth,
				body ? body.offsetWidth : 0, root.offsetWidth
			],
			heights: [
				root.clientHeight, body ? body.scrollHeight : 0, root.scrollHeight,
				body ? body.offsetHeight : 0, root.offsetHeight
			]
		},
		elements
	};
}`

// prepareJS switches off smooth scrolling and page overflow and returns
// everything needed to undo it.
const prepareJS = `(attr, handle) => {
	const body = document.body;
	const root = document.documentElement;
	const target = handle ? document.querySelector("[" + attr + "='" + handle + "']") : null;
	const saved = {
		x: window.scrollX,
		y: window.scrollY,
		overflow: root.style.overflow,
		scrollBehavior: root.style.scrollBehavior,
		bodyOverflowY: body ? body.style.overflowY : "",
		bodyScrollBehavior: body ? body.style.scrollBehavior : "",
		targetScrollTop: target ? target.scrollTop : 0
	};
	if (body) {
		body.style.overflowY = "visible";
		body.style.scrollBehavior = "auto";
	}
	root.style.scrollBehavior = "auto";
	root.style.overflow = "hidden";
	return saved;
}`

// restoreJS undoes prepareJS.
const restoreJS = `(attr, handle, saved) => {
	const body = document.body;
	const root = document.documentElement;
	root.style.overflow = saved.overflow;
	root.style.scrollBehavior = saved.scrollBehavior;
	if (body) {
		body.style.overflowY = saved.bodyOverflowY;
		body.style.scrollBehavior = saved.bodyScrollBehavior;
	}
	window.scrollTo(saved.x, saved.y);
	const target = handle ? document.querySelector("[" + attr + "='" + handle + "']") : null;
	if (target) target.scrollTop = saved.targetScrollTop;
	document.querySelectorAll("[" + attr + "]").forEach((el) => el.removeAttribute(attr));
	return true;
}`

const scrollJS = `(attr, handle, x, y) => {
	if (!handle) {
		window.scrollTo(x, y);
		return true;
	}
	const target = document.querySelector("[" + attr + "='" + handle + "']");
	if (!target) throw new Error("capture target detached from page");
	target.scrollTop = y;
	return true;
}`

const positionJS = `(attr, handle) => {
	if (!handle) return { x: window.scrollX, y: window.scrollY };
	const target = document.querySelector("[" + attr + "='" + handle + "']");
	if (!target) throw new Error("capture target detached from page");
	return { x: 0, y: target.scrollTop };
}`

const frameJS = `() => new Promise((resolve) => window.requestAnimationFrame(() => resolve(true)))`

const titleJS = `() => document.title`
