package api

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Job Events - Web Archivist</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.6;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border-bottom: 1px solid #30363d; padding: 6px 8px; text-align: left; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Job events</h1>
  <p><code>GET /api/v1/events</code> streams Server-Sent Events for every job.
  Narrow the stream with <code>?jobs=&lt;id&gt;,&lt;id&gt;</code> and <code>?kinds=page_done,job_finished</code>.
  Each message carries the job id, the event kind and a JSON payload.</p>
  <pre>id: 5b0c8d7e-...
event: page_done
data: {"kind":"page_done","page":3,"total":10}</pre>
  <table>
    <tr><th>Kind</th><th>Payload</th></tr>
    <tr><td><code>queued</code>, <code>running</code>, <code>job_finished</code></td><td>job snapshot</td></tr>
    <tr><td><code>page_start</code>, <code>page_done</code>, <code>page_failed</code>, <code>page_duplicate</code></td><td>page number, range size, error message</td></tr>
    <tr><td><code>tile_progress</code></td><td>page, settled tiles, tile count</td></tr>
    <tr><td><code>archive_progress</code></td><td>percent in steps of 5</td></tr>
    <tr><td><code>finished</code></td><td>final range status</td></tr>
  </table>
  <pre>curl -N 'http://127.0.0.1:8790/api/v1/events?kinds=page_done,job_finished'</pre>
</body>
</html>`
