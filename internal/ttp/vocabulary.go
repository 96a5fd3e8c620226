package ttp

import (
	"regexp"
	"strings"
)

// DefaultTactic is used when nothing in the hypothesis indicates a tactic.
const DefaultTactic = "execution"

// Tactics lists the canonical ATT&CK enterprise tactics in kill-chain order.
// Substring detection scans them in this order.
var Tactics = []string{
	"initial access",
	"execution",
	"persistence",
	"privilege escalation",
	"defense evasion",
	"credential access",
	"discovery",
	"lateral movement",
	"collection",
	"command and control",
	"exfiltration",
	"impact",
}

var tacticTitles = map[string]string{
	"initial access":       "Initial Access",
	"execution":            "Execution",
	"persistence":          "Persistence",
	"privilege escalation": "Privilege Escalation",
	"defense evasion":      "Defense Evasion",
	"credential access":    "Credential Access",
	"discovery":            "Discovery",
	"lateral movement":     "Lateral Movement",
	"collection":           "Collection",
	"command and control":  "Command and Control",
	"exfiltration":         "Exfiltration",
	"impact":               "Impact",
}

// TacticTitle returns the display form of a canonical tactic name.
func TacticTitle(tactic string) string {
	if title, ok := tacticTitles[strings.ToLower(strings.TrimSpace(tactic))]; ok {
		return title
	}
	return tactic
}

// CanonicalTactic returns the lowercase canonical name when s names a tactic.
func CanonicalTactic(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	_, ok := tacticTitles[s]
	return s, ok
}

// tacticHints infer a tactic from verbs when no tactic is named outright.
// The first matching row wins.
var tacticHints = []struct {
	tactic string
	words  []string
}{
	{"execution", []string{"download", "execute", "run", "launch"}},
	{"persistence", []string{"persist", "startup", "service", "registry"}},
	{"defense evasion", []string{"evade", "bypass", "hide", "obfuscate"}},
	{"credential access", []string{"credential", "password", "token", "hash"}},
	{"discovery", []string{"scan", "enumerate", "discover", "recon"}},
	{"lateral movement", []string{"lateral", "move", "spread", "pivot"}},
	{"collection", []string{"collect", "gather", "harvest", "steal"}},
	{"command and control", []string{"c2", "command", "control", "beacon"}},
	{"exfiltration", []string{"exfiltrate", "leak", "upload", "transmit"}},
	{"impact", []string{"destroy", "delete", "encrypt", "ransom"}},
}

// techniqueKeywords map hypothesis keywords to ATT&CK technique IDs.
var techniqueKeywords = []struct {
	keyword string
	id      string
}{
	{"powershell", "T1059.001"},
	{"cmd", "T1059.003"},
	{"wmi", "T1047"},
	{"registry", "T1112"},
	{"scheduled task", "T1053"},
	{"service", "T1543"},
	{"dll injection", "T1055"},
	{"process injection", "T1055"},
	{"dll hijacking", "T1574"},
	{"phishing", "T1566"},
	{"spearphishing", "T1566.001"},
	{"remote desktop", "T1021.001"},
	{"smb", "T1021.002"},
	{"ssh", "T1021.004"},
	{"winrm", "T1021.006"},
	{"mimikatz", "T1003"},
	{"credential dumping", "T1003"},
	{"lsass", "T1003.001"},
	{"sam", "T1003.002"},
	{"browser", "T1555.003"},
	{"network scan", "T1046"},
	{"port scan", "T1046"},
	{"file discovery", "T1083"},
	{"system info", "T1082"},
	{"dns tunneling", "T1071.004"},
	{"http", "T1071.001"},
	{"https", "T1071.001"},
	{"c2", "T1071"},
	{"command and control", "T1071"},
	{"data exfiltration", "T1041"},
	{"ransomware", "T1486"},
	{"encryption", "T1486"},
	{"proxy", "T1090"},
	{"tunnel", "T1090"},
	{"tunneling", "T1090"},
	{"chisel", "T1090"},
	{"ngrok", "T1090"},
	{"port forwarding", "T1090"},
	{"socks", "T1090.001"},
}

var techniquePatterns = []struct {
	pattern *regexp.Regexp
	id      string
}{
	{regexp.MustCompile(`dll.*(?:inject|hijack)`), "T1055"},
	{regexp.MustCompile(`script|macro|vba`), "T1059"},
	{regexp.MustCompile(`email|attachment|link`), "T1566"},
}

// procedureRules fire independently; each yields one canonical phrase.
var procedureRules = []struct {
	all       []string
	any       []string
	procedure string
}{
	{all: []string{"invoke-webrequest"}, procedure: "invoke-webrequest download"},
	{all: []string{"certutil", "download"}, procedure: "certutil download"},
	{all: []string{"bitsadmin"}, procedure: "bitsadmin transfer"},
	{all: []string{"regsvr32"}, procedure: "regsvr32 execution"},
	{all: []string{"rundll32"}, procedure: "rundll32 execution"},
	{all: []string{"mshta"}, procedure: "mshta execution"},
	{all: []string{"scheduled task"}, procedure: "scheduled task persistence"},
	{all: []string{"service"}, any: []string{"create", "install"}, procedure: "service installation"},
	{all: []string{"registry"}, any: []string{"modify", "add"}, procedure: "registry modification"},
	{all: []string{"dll", "inject"}, procedure: "dll injection"},
	{all: []string{"process", "inject"}, procedure: "process injection"},
	{all: []string{"memory", "inject"}, procedure: "memory injection"},
	{all: []string{"socks", "proxy"}, procedure: "socks proxy creation"},
	{all: []string{"tunnel"}, any: []string{"bypass", "conceal"}, procedure: "network tunneling bypass"},
	{all: []string{"chisel"}, procedure: "chisel tunneling tool usage"},
	{all: []string{"proxy", "c2"}, procedure: "proxy-based c2 communication"},
	{all: []string{"port forwarding"}, procedure: "port forwarding technique"},
}

var tools = []string{
	"powershell", "cmd", "wmic", "reg", "sc", "net", "netsh", "certutil",
	"bitsadmin", "regsvr32", "rundll32", "mshta", "cscript", "wscript",
	"mimikatz", "cobalt strike", "metasploit", "empire", "bloodhound",
	"sharphound", "rubeus", "kerberoast", "invoke-mimikatz", "crackmapexec",
	"psexec", "winexe", "impacket", "nmap", "masscan", "burp suite", "sqlmap",
	"hashcat", "john", "hydra", "medusa", "nikto", "dirb", "chisel", "ngrok",
	"frp", "proxychains", "socat", "netcat", "nc", "stunnel", "tor",
	"proxifier", "dante", "ssh", "plink",
}

// Targets lists the platforms and services recognized in hypotheses.
var Targets = []string{
	"windows", "linux", "macos", "android", "ios", "active directory",
	"domain controller", "sql server", "mysql", "postgresql", "oracle",
	"apache", "nginx", "iis", "tomcat", "jboss", "sharepoint", "exchange",
	"office 365", "azure", "aws", "gcp", "kubernetes", "docker", "vmware",
	"citrix", "rdp", "ssh", "ftp", "smb", "nfs", "dns", "dhcp", "vpn",
}

var dataSources = []string{
	"windows event logs", "sysmon", "process monitoring", "file monitoring",
	"registry monitoring", "network traffic", "dns logs", "proxy logs",
	"firewall logs", "web server logs", "database logs", "authentication logs",
	"email logs", "endpoint detection", "antivirus", "dlp", "siem", "soar",
	"threat intelligence", "honeypot", "deception", "sandboxing",
}
