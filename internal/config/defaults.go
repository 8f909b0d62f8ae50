package config

// DefaultConfigYAML contains the default configuration written by `quorum-dx init`.
const DefaultConfigYAML = `# quorum-dx configuration
#
# Values not specified here use built-in defaults.

log:
  level: info
  format: auto

diagnosis:
  # 0 runs every specialist at once
  workers: 0
  task_timeout: 5m
  # Bounds the whole specialist stage; 0 disables it
  stage_timeout: 0
  synthesis_timeout: 10m
  # Retries of transient backend errors within one specialist
  max_retries: 2
  # Larger documents are refused, never truncated
  max_document_bytes: 100000

# Task backends. http backends speak the OpenAI chat-completions API;
# api_key may be left empty and supplied as QUORUM_DX_<NAME>_API_KEY.
backends:
  openai:
    type: http
    base_url: https://api.openai.com/v1
    model: gpt-4o-mini
    timeout: 2m
    max_tokens: 2048
    temperature: 0.2
    rate_limit_rpm: 60
  # local:
  #   type: cli
  #   path: ollama run llama3
  #   timeout: 5m

# Declaration order is the order the synthesis sees the opinions in.
specialists:
  - name: Cardiologist
    prompt: cardiologist
    backend: openai
  - name: Psychologist
    prompt: psychologist
    backend: openai
  - name: Pulmonologist
    prompt: pulmonologist
    backend: openai

synthesis:
  name: MultidisciplinaryTeam
  prompt: multidisciplinary-team
  backend: openai

state:
  path: .quorum-dx/state/runs.db

report:
  dir: .quorum-dx/results
  file_name: final_diagnosis.txt

server:
  addr: 127.0.0.1:8080

watch:
  dir: .quorum-dx/inbox
  extensions: [".txt", ".md"]
`
