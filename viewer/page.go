package viewer

import "net/http"

const page = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>minicap</title>
<style>
body { margin: 0; background: #111; color: #ccc; font-family: sans-serif; text-align: center; }
canvas { max-height: 90vh; max-width: 100vw; }
button { margin: 8px 4px; }
</style>
</head>
<body>
<div>
  <button data-rotate="0">0°</button>
  <button data-rotate="90">90°</button>
  <button data-rotate="180">180°</button>
  <button data-rotate="270">270°</button>
  <span id="info"></span>
</div>
<canvas id="screen"></canvas>
<script>
const canvas = document.getElementById('screen');
const g = canvas.getContext('2d');
const info = document.getElementById('info');
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.binaryType = 'blob';
ws.onmessage = (ev) => {
  if (typeof ev.data === 'string') {
    const msg = JSON.parse(ev.data);
    if (msg.type === 'banner') {
      const b = msg.data;
      info.textContent = b.real_width + 'x' + b.real_height + ' pid ' + b.pid;
    }
    return;
  }
  const url = URL.createObjectURL(ev.data);
  const img = new Image();
  img.onload = () => {
    canvas.width = img.width;
    canvas.height = img.height;
    g.drawImage(img, 0, 0);
    URL.revokeObjectURL(url);
  };
  img.src = url;
};
document.querySelectorAll('button[data-rotate]').forEach((b) => {
  b.onclick = () => ws.send('rotate:' + b.dataset.rotate);
});
</script>
</body>
</html>
`

func servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}
