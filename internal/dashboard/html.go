package dashboard

// indexHTML is the single-page dashboard. Every piece of state lives on the
// server; the page only forwards input and renders what the API returns.
const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>ESP32 Detection Dashboard</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/dashboard.css">
    <style>
        body { font-family: system-ui, sans-serif; background: #111827; color: #e5e7eb; margin: 0; }
        .app { max-width: 1200px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
        .badge { padding: 4px 10px; border-radius: 999px; font-size: 12px; background: #374151; }
        .badge.connected { background: #065f46; }
        .badge.connecting { background: #92400e; }
        .badge.disconnected { background: #7f1d1d; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1f2937; border-radius: 8px; padding: 12px; }
        .feature { border-top: 1px solid #374151; padding: 8px 0; }
        .feature-head { display: flex; justify-content: space-between; align-items: center; cursor: pointer; }
        .feature-body { display: none; margin-top: 8px; }
        .feature.expanded .feature-body { display: block; }
        .pending { opacity: 0.6; }
        .stage { position: relative; width: 100%; }
        .stage img { width: 100%; display: block; background: #000; }
        .stage canvas, .stage .overlay { position: absolute; top: 0; left: 0; width: 100%; height: 100%; }
        .readout { font-family: monospace; font-size: 12px; min-height: 1em; }
        button { background: #374151; color: #e5e7eb; border: 0; border-radius: 4px; padding: 4px 10px; cursor: pointer; }
        input { width: 80px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">ESP32 Detection Dashboard</div>
            <div>
                <span class="badge" id="conn-badge">disconnected</span>
                <button id="btn-test">Test</button>
                <img src="/api/qr.png?size=96" alt="Open on phone" style="vertical-align:middle;height:48px;">
            </div>
        </div>

        <div class="grid">
            <div class="panel">
                <div class="stage" id="stage">
                    <img id="stream" alt="Live stream">
                    <img id="overlay" class="overlay" alt="">
                    <canvas id="input"></canvas>
                </div>
                <div class="readout" id="readout"></div>
            </div>

            <div class="panel">
                <h3>Detection</h3>
                <div id="features"></div>
                <h3>Motion sensitivity</h3>
                <label>motion <input id="motion-threshold" type="number" min="0" value="30"></label>
                <label>alarm <input id="alarm-threshold" type="number" min="0" value="5"></label>
                <button id="btn-sensitivity">Apply</button>
                <h3>Camera</h3>
                <label>quality <input id="quality" type="number" min="4" max="63" value="10"></label>
                <button id="btn-quality">Set</button>
                <div class="readout" id="camera-result"></div>
            </div>
        </div>
    </div>

    <script>
        const editorFeatures = ['crossline', 'pipeline'];
        const featuresEl = document.getElementById('features');
        const streamImg = document.getElementById('stream');
        const overlayImg = document.getElementById('overlay');
        const inputCanvas = document.getElementById('input');
        const readout = document.getElementById('readout');
        const states = {};
        let active = null;

        async function api(method, path, body) {
            const res = await fetch(path, {
                method,
                headers: body ? { 'Content-Type': 'application/json' } : {},
                body: body ? JSON.stringify(body) : undefined,
            });
            return res.json();
        }

        function renderFeature(st) {
            states[st.feature] = st;
            let el = document.getElementById('feature-' + st.feature);
            if (!el) {
                el = document.createElement('div');
                el.id = 'feature-' + st.feature;
                el.className = 'feature';
                el.innerHTML =
                    '<div class="feature-head"><span class="name"></span>' +
                    '<span><span class="status"></span> <input type="checkbox" class="toggle"></span></div>' +
                    '<div class="feature-body"><div class="details"></div>' +
                    (editorFeatures.includes(st.feature)
                        ? '<button class="add">Add line</button> <button class="clear">Clear</button>'
                        : '') +
                    '</div>';
                el.querySelector('.name').textContent = st.feature;
                el.querySelector('.feature-head').addEventListener('click', (e) => {
                    if (e.target.classList.contains('toggle')) return;
                    const f = st.feature;
                    const action = states[f].expanded ? 'collapse' : 'expand';
                    api('POST', '/api/detection/' + f + '/' + action).then(renderFeature);
                    if (action === 'expand') selectStream(f);
                });
                el.querySelector('.toggle').addEventListener('change', (e) => {
                    api('POST', '/api/detection/' + st.feature, { enabled: e.target.checked })
                        .then((r) => r.state && renderFeature(r.state));
                });
                const add = el.querySelector('.add');
                if (add) add.addEventListener('click', () => editor('POST', 'lines'));
                const clear = el.querySelector('.clear');
                if (clear) clear.addEventListener('click', () => editor('DELETE', 'lines'));
                featuresEl.appendChild(el);
            }
            el.classList.toggle('expanded', st.expanded);
            el.classList.toggle('pending', st.pending);
            el.querySelector('.status').textContent = st.status;
            el.querySelector('.toggle').checked = st.enabled;
            el.querySelector('.details').textContent = JSON.stringify(st.details || {});
        }

        function selectStream(feature) {
            active = feature;
            streamImg.src = '/' + feature + '/stream?t=' + Date.now();
            api('POST', '/api/detection/' + feature + '/streaming', { streaming: true });
            refreshOverlay();
        }

        function refreshOverlay() {
            if (!editorFeatures.includes(active)) {
                overlayImg.removeAttribute('src');
                return;
            }
            overlayImg.src = '/api/editor/' + active + '/overlay.png?t=' + Date.now();
        }

        async function editor(method, action, body) {
            if (!editorFeatures.includes(active)) return;
            const r = await api(method, '/api/editor/' + active + '/' + action, body);
            if (r.view) {
                const p = r.view.readout;
                readout.textContent = p ? 'x=' + Math.round(p.x) + ' y=' + Math.round(p.y) : '';
                inputCanvas.style.cursor = r.view.cursor || 'default';
            }
            if (r.sync && !r.sync.success) readout.textContent = 'sync failed: ' + r.sync.error;
            refreshOverlay();
        }

        function pointer(type) {
            return (e) => {
                const rect = inputCanvas.getBoundingClientRect();
                editor('POST', 'pointer', { type, x: e.clientX - rect.left, y: e.clientY - rect.top });
            };
        }
        inputCanvas.addEventListener('mousedown', pointer('down'));
        inputCanvas.addEventListener('mousemove', pointer('move'));
        inputCanvas.addEventListener('mouseup', pointer('up'));
        inputCanvas.addEventListener('mouseleave', pointer('leave'));

        function syncViewport() {
            if (!streamImg.naturalWidth) return;
            const rect = streamImg.getBoundingClientRect();
            inputCanvas.width = rect.width;
            inputCanvas.height = rect.height;
            editor('POST', 'viewport', {
                natural: { w: streamImg.naturalWidth, h: streamImg.naturalHeight },
                display: { w: rect.width, h: rect.height },
                canvas: { w: inputCanvas.width, h: inputCanvas.height },
            });
        }
        streamImg.addEventListener('load', syncViewport);
        window.addEventListener('resize', syncViewport);

        async function refreshConnection() {
            const c = await api('GET', '/api/connection');
            const badge = document.getElementById('conn-badge');
            badge.textContent = c.state;
            badge.className = 'badge ' + c.state;
        }
        document.getElementById('btn-test').addEventListener('click', () =>
            api('GET', '/api/camera/test').then(refreshConnection));

        document.getElementById('btn-sensitivity').addEventListener('click', () => {
            api('POST', '/api/motion/sensitivity', {
                motion_threshold: Number(document.getElementById('motion-threshold').value),
                alarm_threshold: Number(document.getElementById('alarm-threshold').value),
            }).then((r) => { document.getElementById('camera-result').textContent = r.success ? 'ok' : r.error; });
        });
        document.getElementById('btn-quality').addEventListener('click', () => {
            api('POST', '/api/camera/control', { var: 'quality', val: Number(document.getElementById('quality').value) })
                .then((r) => { document.getElementById('camera-result').textContent = r.success ? 'ok' : r.error; })
                .then(refreshConnection);
        });

        const events = new EventSource('/api/detection/stream');
        events.onmessage = (e) => renderFeature(JSON.parse(e.data));

        window.addEventListener('load', () => {
            streamImg.src = '/stream?t=' + Date.now();
            refreshConnection();
            setInterval(refreshConnection, 5000);
        });
    </script>
</body>
</html>
`
