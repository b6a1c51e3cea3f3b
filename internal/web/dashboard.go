package web

// Single-page vault dashboard fed by the JSON endpoints and /events/stream.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>riskvault</title>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Press+Start+2P&family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-mid:#4d4d4d; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body {
      margin:0; min-height:100vh; display:flex; align-items:center; justify-content:center;
      padding:2rem; background:var(--bg); color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      width:min(1100px, 96vw); background:var(--panel); border:3px solid var(--ink);
      padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15);
      display:grid; grid-template-columns:1fr 340px; gap:2rem;
    }
    header { grid-column:1 / -1; display:flex; justify-content:space-between; align-items:center; }
    .eyebrow { font-family:'Press Start 2P','Space Mono',monospace; font-size:.7rem; letter-spacing:.2em; text-transform:uppercase; margin:0; }
    .status { font-size:.65rem; text-transform:uppercase; letter-spacing:.1em; border:2px solid var(--ink); padding:.4rem .9rem; background:#fff; }
    .cards { display:grid; grid-template-columns:repeat(auto-fit, minmax(220px, 1fr)); gap:1.2rem; }
    .card { border:3px solid var(--ink); padding:1.2rem; background:#fff; box-shadow:6px 6px 0 rgba(0,0,0,.12); }
    .card h2 { font-family:'Press Start 2P','Space Mono',monospace; font-size:.6rem; margin:0 0 .8rem; letter-spacing:.1em; }
    .row { display:flex; justify-content:space-between; font-size:.8rem; padding:.15rem 0; }
    .row span:first-child { color:var(--ink-mid); }
    .bar { display:flex; height:18px; border:2px solid var(--ink); margin-top:.6rem; }
    .bar div { height:100%; }
    .c { background:#111; } .m { background:#777; } .a { background:#ddd; }
    #events { border:3px solid var(--ink); background:#fff; padding:1rem; height:520px; overflow-y:auto; font-size:.7rem; }
    .event { border-bottom:1px dashed var(--ink-soft); padding:.4rem 0; }
    .event b { text-transform:uppercase; }
  </style>
</head>
<body>
<div id="app">
  <header>
    <p class="eyebrow">riskvault</p>
    <span class="status" id="conn">connecting</span>
  </header>
  <div class="cards">
    <div class="card"><h2>Vault</h2>
      <div class="row"><span>total deposits</span><span id="total">-</span></div>
      <div class="row"><span>price</span><span id="price">-</span></div>
      <div class="row"><span>deposit limit</span><span id="limit">-</span></div>
      <div class="row"><span>custody balance</span><span id="ledger">-</span></div>
    </div>
    <div class="card"><h2>Volatility</h2>
      <div class="row"><span>index (bps)</span><span id="vol">-</span></div>
      <div class="row"><span>samples</span><span id="samples">-</span></div>
      <div class="row"><span>can update</span><span id="canupdate">-</span></div>
    </div>
    <div class="card"><h2>Allocation</h2>
      <div class="row"><span>conservative</span><span id="cons">-</span></div>
      <div class="row"><span>moderate</span><span id="mod">-</span></div>
      <div class="row"><span>aggressive</span><span id="aggr">-</span></div>
      <div class="bar"><div class="c" id="bc"></div><div class="m" id="bm"></div><div class="a" id="ba"></div></div>
    </div>
    <div class="card"><h2>Rebalance</h2>
      <div class="row"><span>count</span><span id="count">-</span></div>
      <div class="row"><span>threshold (bps)</span><span id="threshold">-</span></div>
      <div class="row"><span>upkeep</span><span id="upkeep">-</span></div>
    </div>
  </div>
  <div id="events"></div>
</div>
<script>
  const fmtPrice = p => (Number(p) / 1e8).toFixed(2);
  const pct = b => (b / 100).toFixed(2) + '%';
  const set = (id, v) => { document.getElementById(id).textContent = v; };

  async function refresh() {
    const get = url => fetch(url).then(r => r.ok ? r.json() : null).catch(() => null);
    const [status, vol, alloc, reb, upkeep] = await Promise.all([
      get('/vault/status'), get('/vault/volatility'), get('/vault/allocation'),
      get('/vault/rebalance'), get('/upkeep/check'),
    ]);
    if (status) {
      set('total', status.total_deposits); set('price', fmtPrice(status.current_price));
      set('limit', status.current_deposit_limit); set('ledger', status.ledger_balance);
    }
    if (vol) { set('vol', vol.current_volatility_bps); set('samples', vol.price_count); set('canupdate', vol.can_update); }
    if (alloc) {
      set('cons', pct(alloc.conservative_bps)); set('mod', pct(alloc.moderate_bps)); set('aggr', pct(alloc.aggressive_bps));
      document.getElementById('bc').style.width = pct(alloc.conservative_bps);
      document.getElementById('bm').style.width = pct(alloc.moderate_bps);
      document.getElementById('ba').style.width = pct(alloc.aggressive_bps);
    }
    if (reb) { set('count', reb.rebalance_count); set('threshold', reb.threshold_bps); }
    if (upkeep) { set('upkeep', upkeep.upkeep_needed ? 'needed' : upkeep.reason); }
  }

  function addEvent(type, data) {
    const el = document.createElement('div');
    el.className = 'event';
    const ts = new Date(data.ts).toLocaleTimeString();
    let detail = '';
    if (data.amount) detail = data.account + ' ' + data.amount;
    if (data.volatility_bps !== undefined && !data.amount) detail = data.volatility_bps + ' bps';
    if (data.field) detail = data.field + ' = ' + data.value;
    el.innerHTML = '<b>' + type + '</b> ' + ts + '<br>' + detail;
    const box = document.getElementById('events');
    box.prepend(el);
  }

  const source = new EventSource('/events/stream');
  source.onopen = () => set('conn', 'live');
  source.onerror = () => set('conn', 'reconnecting');
  ['deposited', 'withdrawn', 'volatility_updated', 'rebalance_triggered', 'config_updated'].forEach(type => {
    source.addEventListener(type, ev => { addEvent(type, JSON.parse(ev.data)); refresh(); });
  });

  refresh();
  setInterval(refresh, 10000);
</script>
</body>
</html>
`
