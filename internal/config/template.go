package config

// StarterTOML is written by "kiln init".
const StarterTOML = `mode = "development"

[entries]
app = "src/index.js"

[resolve]
extensions = [".js", ".mjs", ".json"]
main_files = ["index"]
modules = ["./src", "node_modules"]

[output]
dir = "dist"
filename = "static/js/bundle.js"
chunk_filename = "static/js/[name].chunk.js"
public_path = "/"
clean = true
html_template = "public/index.html"
hoist = "lazy"
min_share = 3

[watch]
poll = false
debounce = "100ms"

[dev]
host = "127.0.0.1"
port = 3000
content_base = "public"
compress = true
history_fallback = true
`

// StarterHTML is the page template written next to StarterTOML.
const StarterHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <title>kiln app</title>
  </head>
  <body>
    <div id="root"></div>
  </body>
</html>
`

// StarterEntry is the entry module written by "kiln init".
const StarterEntry = `const root = document.getElementById("root");
root.textContent = "Hello from kiln";
`
