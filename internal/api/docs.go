package api

// docsHTML renders the OpenAPI document with Stoplight Elements under a
// small navigation bar.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Web Archivist API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    html, body { height: 100%; margin: 0; background: #0d1117; }
    nav {
      display: flex;
      align-items: center;
      gap: 18px;
      height: 40px;
      padding: 0 16px;
      border-bottom: 1px solid #30363d;
      font: 13px -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
      color: #c9d1d9;
    }
    nav strong { margin-right: auto; }
    nav a { color: #58a6ff; text-decoration: none; }
    main { height: calc(100% - 41px); }
  </style>
</head>
<body>
  <nav>
    <strong>Web Archivist</strong>
    <a href="/docs/events">Job Events Docs</a>
    <a href="/openapi.yaml">openapi.yaml</a>
  </nav>
  <main>
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      hideSchemas="true"
      tryItCredentialsPolicy="same-origin"
    />
  </main>
</body>
</html>`
