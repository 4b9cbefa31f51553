package graph

const graphSystem = `You are a supply-chain and market-structure analyst. When asked for JSON, answer with JSON wrapped in <JSON></JSON> tags and nothing else.`

const metadataPrompt = `Identify the company described below.

Text:
%s

Respond with ONLY this JSON, wrapped in <JSON></JSON> tags:
{"company_name": "Name", "domain": "Industry domain, e.g. Fintech", "area": "Specific area, e.g. B2B payments"}`

const dependencyPrompt = `List the key dependencies of %s: the suppliers, platforms, infrastructure, raw materials and partners it relies on to operate. For each, name the entity and explain the relationship in one sentence.

Company description:
%s`

const dependentPrompt = `List who depends on %s: the customer segments, industries, partners and companies that rely on its product or service. For each, name the entity and explain the relationship in one sentence.

Company description:
%s`

const entityPrompt = `Extract the %s named in the research notes below.

Research notes:
%s

Respond with ONLY a JSON array, wrapped in <JSON></JSON> tags:
[{"entity_name": "Name", "entity_type": "company" | "sector" | "resource" | "technology", "relationship": "One sentence", "category": "Short grouping label"}]`

const marketInfoPrompt = `Give current market information for %s (%s): stock ticker and recent price if publicly traded, market position, and notable export or import exposure for the US, China and India. Answer in at most five sentences.`

const structurePrompt = `Build a knowledge graph for the startup below from the gathered dependency data. Dependencies sit on the left of the root, dependents on the right.

Startup description:
%s

Gathered data:
%s

Respond with ONLY this JSON, wrapped in <JSON></JSON> tags:
{
    "root": {"id": "company_root", "name": "Company", "type": "company"},
    "nodes": [{"id": "node_id", "name": "Entity", "type": "dependency" | "dependent", "category": "Label"}],
    "edges": [{"source": "node_id", "target": "company_root", "relationship": "One sentence"}]
}`
